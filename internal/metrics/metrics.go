package metrics

import (
	"math"
	"net/http"
	"sort"
	"time"

	"voicenotes-go/internal/types"
)

// Counts buckets runs by outcome. A run succeeded when the email upstream
// accepted it, either fresh (200) or as an idempotent duplicate (409).
type Counts struct {
	Total        int `json:"total"`
	Success      int `json:"success"`
	Fail         int `json:"fail"`
	Sent200      int `json:"sent_200"`
	Duplicate409 int `json:"duplicate_409"`
}

type Latency struct {
	AvgMs int64 `json:"avg_ms"`
	P50Ms int64 `json:"p50_ms"`
	P90Ms int64 `json:"p90_ms"`
	P95Ms int64 `json:"p95_ms"`
	MaxMs int64 `json:"max_ms"`
}

type StageAverages struct {
	TranscribeMs int64 `json:"transcribe_ms"`
	SummarizeMs  int64 `json:"summarize_ms"`
	EmailMs      int64 `json:"email_ms"`
}

type Report struct {
	Window      string        `json:"window"`
	Counts      Counts        `json:"counts"`
	SuccessRate float64       `json:"success_rate"`
	Total       Latency       `json:"t_total"`
	StagesAvg   StageAverages `json:"stages_avg"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
}

// Compute aggregates run records into the dashboard report. rows may be in
// any order.
func Compute(rows []types.RunRecord, window string) Report {
	report := Report{Window: window}
	report.Counts.Total = len(rows)
	if len(rows) == 0 {
		return report
	}

	var totals, transcribes, summarizes, emails []int64
	var lastRun time.Time

	for _, r := range rows {
		if r.EmailUpstreamStatus != nil {
			switch *r.EmailUpstreamStatus {
			case http.StatusOK:
				report.Counts.Sent200++
				report.Counts.Success++
			case http.StatusConflict:
				report.Counts.Duplicate409++
				report.Counts.Success++
			default:
				report.Counts.Fail++
			}
		} else if r.StatusTag == "success" {
			report.Counts.Success++
		} else {
			report.Counts.Fail++
		}

		if r.TotalMs != nil {
			totals = append(totals, *r.TotalMs)
		}
		if r.TranscribeMs != nil {
			transcribes = append(transcribes, *r.TranscribeMs)
		}
		if r.SummarizeMs != nil {
			summarizes = append(summarizes, *r.SummarizeMs)
		}
		if r.EmailMs != nil {
			emails = append(emails, *r.EmailMs)
		}
		if r.CreatedAt.After(lastRun) {
			lastRun = r.CreatedAt
		}
	}

	report.SuccessRate = float64(report.Counts.Success) / float64(report.Counts.Total)
	if !lastRun.IsZero() {
		report.LastRunAt = &lastRun
	}

	if len(totals) > 0 {
		sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
		report.Total = Latency{
			AvgMs: avg(totals),
			P50Ms: percentile(totals, 50),
			P90Ms: percentile(totals, 90),
			P95Ms: percentile(totals, 95),
			MaxMs: totals[len(totals)-1],
		}
	}
	report.StagesAvg = StageAverages{
		TranscribeMs: avg(transcribes),
		SummarizeMs:  avg(summarizes),
		EmailMs:      avg(emails),
	}
	return report
}

func avg(xs []int64) int64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int64
	for _, x := range xs {
		sum += x
	}
	return sum / int64(len(xs))
}

// percentile uses the nearest-rank-below index on an ascending slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(p / 100 * float64(len(sorted)-1)))
	return sorted[idx]
}
