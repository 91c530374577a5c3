package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/transcribe"
	"voicenotes-go/internal/types"
)

// WebhookStore is the persistence surface for provider callbacks.
type WebhookStore interface {
	GetTranscriptJob(ctx context.Context, jobID string) (types.TranscriptJob, error)
	MarkTranscriptJob(ctx context.Context, jobID, status string) error
	InsertTranscript(ctx context.Context, t types.Transcript) error
	InsertSummary(ctx context.Context, sum types.Summary) error
}

// WebhookPayload is the provider callback body for an async transcription
// job. Results carries the provider's nested results object verbatim.
type WebhookPayload struct {
	JobID   string          `json:"job_id"`
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Ack struct {
	JobID       string `json:"job_id"`
	RecordingID string `json:"recording_id"`
	Outcome     string `json:"outcome"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// WebhookHandler completes the pipeline when transcription ran as an async
// provider job instead of inline.
type WebhookHandler struct {
	Store      WebhookStore
	Summarizer Summarizer
	Tracker    StatusTracker
	Log        *logrus.Entry
}

// Handle processes one callback. Redelivery of a completed job is
// acknowledged without side effects; provider failure and empty transcript
// both end the recording in error status but still acknowledge the
// delivery so the provider stops retrying.
func (h *WebhookHandler) Handle(ctx context.Context, payload WebhookPayload) (Ack, error) {
	if payload.JobID == "" {
		return Ack{}, types.NewValidation("missing_job_id", "job_id is required")
	}

	job, err := h.Store.GetTranscriptJob(ctx, payload.JobID)
	if err != nil {
		return Ack{}, err
	}
	log := h.Log.WithFields(logrus.Fields{"job_id": job.JobID, "recording_id": job.RecordingID})

	if job.Status == types.JobCompleted {
		log.Info("webhook redelivery for completed job")
		return Ack{JobID: job.JobID, RecordingID: job.RecordingID, Outcome: "completed", Duplicate: true}, nil
	}

	if payload.Status == "failed" || payload.Error != "" {
		return h.failJob(ctx, job, orDefault(payload.Error, "provider reported failure"))
	}

	text, confidence, err := transcribe.ParseResults(payload.Results)
	if err != nil {
		return Ack{}, types.NewValidation("bad_results", err.Error())
	}
	if len(text) < 2 {
		return h.failJob(ctx, job, "empty transcript")
	}

	if err := h.Store.InsertTranscript(ctx, types.Transcript{
		RecordingID: job.RecordingID,
		Text:        text,
		Confidence:  confidence,
	}); err != nil {
		return Ack{}, err
	}

	if err := h.Tracker.Set(ctx, job.RecordingID, types.StatusSummarizing, nil); err != nil {
		return Ack{}, err
	}
	out, err := h.Summarizer.Summarize(ctx, text, "")
	if err != nil {
		msg := err.Error()
		if terr := h.Tracker.Set(ctx, job.RecordingID, types.StatusError, &msg); terr != nil {
			log.WithError(terr).Error("status write failed after summarize error")
		}
		return Ack{}, err
	}

	if err := h.Store.InsertSummary(ctx, types.Summary{
		RecordingID: job.RecordingID,
		Title:       out.Title,
		Summary:     out.Summary,
		Bullets:     out.Bullets,
		ActionItems: out.ActionItems,
		Tags:        out.Tags,
		Confidence:  out.Confidence,
		StyleKey:    out.StyleKey,
	}); err != nil {
		return Ack{}, err
	}

	if err := h.Tracker.Set(ctx, job.RecordingID, types.StatusReady, nil); err != nil {
		return Ack{}, err
	}
	if err := h.Store.MarkTranscriptJob(ctx, job.JobID, types.JobCompleted); err != nil {
		return Ack{}, fmt.Errorf("mark job completed: %w", err)
	}

	log.Info("webhook pipeline completed")
	return Ack{JobID: job.JobID, RecordingID: job.RecordingID, Outcome: "completed"}, nil
}

func (h *WebhookHandler) failJob(ctx context.Context, job types.TranscriptJob, reason string) (Ack, error) {
	if err := h.Tracker.Set(ctx, job.RecordingID, types.StatusError, &reason); err != nil {
		return Ack{}, err
	}
	if err := h.Store.MarkTranscriptJob(ctx, job.JobID, types.JobFailed); err != nil {
		return Ack{}, fmt.Errorf("mark job failed: %w", err)
	}
	h.Log.WithFields(logrus.Fields{
		"job_id":       job.JobID,
		"recording_id": job.RecordingID,
		"reason":       reason,
	}).Warn("transcription job failed")
	return Ack{JobID: job.JobID, RecordingID: job.RecordingID, Outcome: "failed"}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
