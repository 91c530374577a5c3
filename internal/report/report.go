package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"voicenotes-go/internal/types"
)

const sheetName = "Runs"

var header = []string{
	"run_id", "created_at", "status", "audio_path", "email_to",
	"transcript_len", "summary_len", "email_status",
	"t_total_ms", "t_transcribe_ms", "t_summarize_ms", "t_email_ms",
}

// RunsWorkbook renders run history into an XLSX workbook for download.
func RunsWorkbook(rows []types.RunRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for col, name := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, r := range rows {
		values := []any{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.StatusTag,
			r.AudioPath,
			r.EmailTo,
			r.TranscriptLen,
			r.SummaryLen,
			fmtIntPtr(r.EmailUpstreamStatus),
			fmtMsPtr(r.TotalMs),
			fmtMsPtr(r.TranscribeMs),
			fmtMsPtr(r.SummarizeMs),
			fmtMsPtr(r.EmailMs),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf, nil
}

func fmtIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtMsPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
