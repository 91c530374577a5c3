package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"voicenotes-go/internal/types"
)

func (s *Store) InsertTranscript(ctx context.Context, t types.Transcript) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (recording_id, text, confidence)
		VALUES ($1, $2, $3)
	`, t.RecordingID, t.Text, t.Confidence)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// LatestTranscript returns the most recent transcript row; retried runs may
// leave several and consumers always read the newest.
func (s *Store) LatestTranscript(ctx context.Context, recordingID string) (types.Transcript, error) {
	var t types.Transcript
	var confidence sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, recording_id, text, confidence, created_at
		FROM transcripts
		WHERE recording_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, recordingID).Scan(&t.ID, &t.RecordingID, &t.Text, &confidence, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, &types.NotFoundError{Resource: "transcript", ID: recordingID}
	}
	if err != nil {
		return t, fmt.Errorf("query transcript: %w", err)
	}
	if confidence.Valid {
		t.Confidence = &confidence.Float64
	}
	return t, nil
}

// InsertSummary appends a summary row unconditionally. The orchestrator and
// webhook paths use this; duplicate rows are possible under retries there.
func (s *Store) InsertSummary(ctx context.Context, sum types.Summary) error {
	bullets, actions, tags := marshalSummaryLists(sum)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (recording_id, title, summary, bullets, action_items, tags, confidence, summary_style_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sum.RecordingID, sum.Title, sum.Summary, bullets, actions, tags, sum.Confidence, sum.StyleKey)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// UpsertSummary replaces any existing summary rows for a recording in one
// transaction. Only the polling summarization path uses this; there is no
// uniqueness constraint backing it, so concurrent InsertSummary appends
// never conflict.
func (s *Store) UpsertSummary(ctx context.Context, sum types.Summary) error {
	bullets, actions, tags := marshalSummaryLists(sum)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert summary: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM summaries WHERE recording_id = $1
	`, sum.RecordingID); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (recording_id, title, summary, bullets, action_items, tags, confidence, summary_style_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sum.RecordingID, sum.Title, sum.Summary, bullets, actions, tags, sum.Confidence, sum.StyleKey); err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return tx.Commit()
}

func marshalSummaryLists(sum types.Summary) ([]byte, []byte, []byte) {
	bullets, _ := json.Marshal(orEmpty(sum.Bullets))
	actions, _ := json.Marshal(orEmpty(sum.ActionItems))
	tags, _ := json.Marshal(orEmpty(sum.Tags))
	return bullets, actions, tags
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
