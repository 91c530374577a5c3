package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voicenotes-go/internal/types"
)

func (s *Store) CreateTranscriptJob(ctx context.Context, job types.TranscriptJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_jobs (job_id, recording_id, status)
		VALUES ($1, $2, $3)
	`, job.JobID, job.RecordingID, job.Status)
	if err != nil {
		return fmt.Errorf("insert transcript job: %w", err)
	}
	return nil
}

func (s *Store) GetTranscriptJob(ctx context.Context, jobID string) (types.TranscriptJob, error) {
	var job types.TranscriptJob
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, recording_id, status, created_at
		FROM transcript_jobs
		WHERE job_id = $1
	`, jobID).Scan(&job.JobID, &job.RecordingID, &job.Status, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return job, &types.NotFoundError{Resource: "transcript_job", ID: jobID}
	}
	if err != nil {
		return job, fmt.Errorf("query transcript job: %w", err)
	}
	return job, nil
}

func (s *Store) MarkTranscriptJob(ctx context.Context, jobID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transcript_jobs SET status = $2 WHERE job_id = $1
	`, jobID, status)
	if err != nil {
		return fmt.Errorf("update transcript job: %w", err)
	}
	return nil
}
