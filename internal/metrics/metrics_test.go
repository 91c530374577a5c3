package metrics

import (
	"testing"
	"time"

	"voicenotes-go/internal/types"
)

func intPtr(v int) *int    { return &v }
func msPtr(v int64) *int64 { return &v }

func TestComputeCountsAndSuccessRate(t *testing.T) {
	var rows []types.RunRecord
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		rows = append(rows, types.RunRecord{
			EmailUpstreamStatus: intPtr(200),
			TotalMs:             msPtr(int64(1000 + i*100)),
			CreatedAt:           base.Add(time.Duration(i) * time.Minute),
		})
	}
	for i := 0; i < 2; i++ {
		rows = append(rows, types.RunRecord{
			EmailUpstreamStatus: intPtr(409),
			TotalMs:             msPtr(2000),
			CreatedAt:           base.Add(time.Hour),
		})
	}
	rows = append(rows, types.RunRecord{
		EmailUpstreamStatus: intPtr(500),
		TotalMs:             msPtr(5000),
		CreatedAt:           base.Add(2 * time.Hour),
	})

	rep := Compute(rows, "24h")
	if rep.Counts.Total != 10 || rep.Counts.Success != 9 || rep.Counts.Fail != 1 {
		t.Errorf("counts = %+v", rep.Counts)
	}
	if rep.Counts.Sent200 != 7 || rep.Counts.Duplicate409 != 2 {
		t.Errorf("counts = %+v", rep.Counts)
	}
	if rep.SuccessRate != 0.9 {
		t.Errorf("success rate = %v", rep.SuccessRate)
	}
	if rep.Total.MaxMs != 5000 {
		t.Errorf("max = %d", rep.Total.MaxMs)
	}
	if rep.LastRunAt == nil || !rep.LastRunAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("last run = %v", rep.LastRunAt)
	}
}

func TestComputeWithoutEmailUsesStatusTag(t *testing.T) {
	rows := []types.RunRecord{
		{StatusTag: "success"},
		{StatusTag: "error"},
		{StatusTag: "invalid_email"},
	}
	rep := Compute(rows, "24h")
	if rep.Counts.Success != 1 || rep.Counts.Fail != 2 {
		t.Errorf("counts = %+v", rep.Counts)
	}
}

func TestComputeEmpty(t *testing.T) {
	rep := Compute(nil, "24h")
	if rep.Counts.Total != 0 || rep.SuccessRate != 0 || rep.LastRunAt != nil {
		t.Errorf("report = %+v", rep)
	}
}

func TestPercentileIndex(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	// floor(p/100 * (n-1)) on a 10-element slice
	if got := percentile(sorted, 50); got != 50 {
		t.Errorf("p50 = %d", got)
	}
	if got := percentile(sorted, 90); got != 90 {
		t.Errorf("p90 = %d", got)
	}
	if got := percentile(sorted, 95); got != 90 {
		t.Errorf("p95 = %d", got)
	}
	if got := percentile(sorted, 100); got != 100 {
		t.Errorf("p100 = %d", got)
	}
}
