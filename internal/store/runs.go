package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voicenotes-go/internal/types"
)

func (s *Store) CreatePipelineRun(ctx context.Context, run types.PipelineRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, recording_id, user_id, stage, progress, step, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.RecordingID, run.UserID, run.Stage, run.Progress, run.Step, run.TraceID)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// MirrorPipelineRun updates the newest run row for a recording with the
// current stage/progress/step. This feed is UI-only; callers swallow its
// errors.
func (s *Store) MirrorPipelineRun(ctx context.Context, recordingID string, stage types.Status, progress float64, step int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET stage = $2, progress = $3, step = $4, updated_at = now()
		WHERE id = (
			SELECT id FROM pipeline_runs WHERE recording_id = $1 ORDER BY created_at DESC LIMIT 1
		)
	`, recordingID, stage, progress, step)
	if err != nil {
		return fmt.Errorf("mirror pipeline run: %w", err)
	}
	return nil
}

func (s *Store) SaveRunRecord(ctx context.Context, r types.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, audio_path, email_to, email_subject, transcript_len, summary_len,
			email_upstream_status, email_id, idempotency_key, status_tag,
			t_total_ms, t_transcribe_ms, t_summarize_ms, t_email_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.ID, r.UserID, r.AudioPath, r.EmailTo, r.EmailSubject, r.TranscriptLen, r.SummaryLen,
		r.EmailUpstreamStatus, r.EmailID, r.IdempotencyKey, r.StatusTag,
		r.TotalMs, r.TranscribeMs, r.SummarizeMs, r.EmailMs)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

const runColumns = `id, user_id, audio_path, email_to, email_subject, transcript_len, summary_len,
	email_upstream_status, email_id, idempotency_key, status_tag,
	t_total_ms, t_transcribe_ms, t_summarize_ms, t_email_ms, created_at`

func (s *Store) GetRunRecord(ctx context.Context, userID, id string) (types.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE user_id = $1 AND id = $2`, userID, id)
	r, err := scanRunRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return r, &types.NotFoundError{Resource: "run", ID: id}
	}
	return r, err
}

// ListRunRecords pages newest-first using a created_at cursor.
func (s *Store) ListRunRecords(ctx context.Context, userID string, limit int, cursor *time.Time) ([]types.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = $1`
	args := []any{userID}
	if cursor != nil {
		query += ` AND created_at < $2`
		args = append(args, *cursor)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []types.RunRecord
	for rows.Next() {
		r, err := scanRunRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunRecordsSince feeds the metrics aggregation window.
func (s *Store) RunRecordsSince(ctx context.Context, userID string, since time.Time, limit int) ([]types.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`,
		userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs window: %w", err)
	}
	defer rows.Close()

	var out []types.RunRecord
	for rows.Next() {
		r, err := scanRunRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRunRecord(scan func(...any) error) (types.RunRecord, error) {
	var r types.RunRecord
	var emailTo, emailSubject, emailID, idemKey sql.NullString
	var upstream sql.NullInt64
	var total, transcribe, summarize, email sql.NullInt64
	err := scan(&r.ID, &r.UserID, &r.AudioPath, &emailTo, &emailSubject, &r.TranscriptLen, &r.SummaryLen,
		&upstream, &emailID, &idemKey, &r.StatusTag,
		&total, &transcribe, &summarize, &email, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.EmailTo = emailTo.String
	r.EmailSubject = emailSubject.String
	r.EmailID = emailID.String
	r.IdempotencyKey = idemKey.String
	if upstream.Valid {
		v := int(upstream.Int64)
		r.EmailUpstreamStatus = &v
	}
	r.TotalMs = nullMs(total)
	r.TranscribeMs = nullMs(transcribe)
	r.SummarizeMs = nullMs(summarize)
	r.EmailMs = nullMs(email)
	return r, nil
}

func nullMs(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
