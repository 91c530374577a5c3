package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voicenotes-go/internal/types"
)

func (s *Store) CreateRecording(ctx context.Context, rec types.Recording) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, user_id, storage_path, mime_type, status, status_changed_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
	`, rec.ID, rec.UserID, rec.StoragePath, rec.MimeType, rec.Status, rec.DurationSeconds)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (types.Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, storage_path, mime_type, status, status_changed_at, last_error, duration_seconds, created_at
		FROM recordings
		WHERE id = $1
	`, id)
	return scanRecording(row)
}

// GetRecordingOwned enforces caller scoping on reads.
func (s *Store) GetRecordingOwned(ctx context.Context, id, userID string) (types.Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, storage_path, mime_type, status, status_changed_at, last_error, duration_seconds, created_at
		FROM recordings
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	return scanRecording(row)
}

func scanRecording(row *sql.Row) (types.Recording, error) {
	var rec types.Recording
	var mime, lastErr sql.NullString
	var duration sql.NullFloat64
	err := row.Scan(&rec.ID, &rec.UserID, &rec.StoragePath, &mime, &rec.Status,
		&rec.StatusChangedAt, &lastErr, &duration, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, types.ErrRecordingNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan recording: %w", err)
	}
	rec.MimeType = mime.String
	if lastErr.Valid {
		rec.LastError = &lastErr.String
	}
	rec.DurationSeconds = duration.Float64
	return rec, nil
}

// UpdateRecordingStatus flips status and the status-changed timestamp; a nil
// lastError leaves last_error untouched.
func (s *Store) UpdateRecordingStatus(ctx context.Context, id string, status types.Status, lastError *string) error {
	var res sql.Result
	var err error
	if lastError != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE recordings SET status = $2, status_changed_at = $3, last_error = $4 WHERE id = $1
		`, id, status, time.Now().UTC(), *lastError)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE recordings SET status = $2, status_changed_at = $3 WHERE id = $1
		`, id, status, time.Now().UTC())
	}
	if err != nil {
		return fmt.Errorf("update recording status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrRecordingNotFound
	}
	return nil
}
