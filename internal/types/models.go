package types

import "time"

// Status is the recording lifecycle. recordings.status is the single source
// of truth for pipeline position; the pipeline_runs mirror may lag or be
// missing without affecting correctness.
type Status string

const (
	StatusLocal        Status = "local"
	StatusUploading    Status = "uploading"
	StatusTranscribing Status = "transcribing"
	StatusSummarizing  Status = "summarizing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// Recording is the primary entity for one uploaded audio artifact.
type Recording struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	StoragePath     string    `json:"storage_path"`
	MimeType        string    `json:"mime_type,omitempty"`
	Status          Status    `json:"status"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	LastError       *string   `json:"last_error,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Transcript rows are immutable once written; retries may leave multiple
// rows per recording and consumers read the most recent.
type Transcript struct {
	ID          int64     `json:"id"`
	RecordingID string    `json:"recording_id"`
	Text        string    `json:"text"`
	Confidence  *float64  `json:"confidence,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is the structured summarization output for a recording.
type Summary struct {
	ID          int64     `json:"id"`
	RecordingID string    `json:"recording_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Bullets     []string  `json:"bullets"`
	ActionItems []string  `json:"action_items"`
	Tags        []string  `json:"tags"`
	Confidence  float64   `json:"confidence"`
	StyleKey    string    `json:"summary_style_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// PipelineRun mirrors stage/progress/step for UI streaming. Write failures
// here must never abort a pipeline.
type PipelineRun struct {
	ID          string    `json:"id"`
	RecordingID string    `json:"recording_id"`
	UserID      string    `json:"user_id"`
	Stage       string    `json:"stage"`
	Progress    float64   `json:"progress"`
	Step        int       `json:"step"`
	TraceID     string    `json:"trace_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TranscriptJob tracks one provider transcription job for webhook
// idempotency: a job already marked completed is acknowledged without side
// effects.
type TranscriptJob struct {
	JobID       string    `json:"job_id"`
	RecordingID string    `json:"recording_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// RunRecord is the per-run history row behind GET /v1/runs and /v1/metrics.
// It is written best-effort at the end of every orchestrator run.
type RunRecord struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	AudioPath           string    `json:"audio_url"`
	EmailTo             string    `json:"email_to,omitempty"`
	EmailSubject        string    `json:"email_subject,omitempty"`
	TranscriptLen       int       `json:"transcript_len"`
	SummaryLen          int       `json:"summary_len"`
	EmailUpstreamStatus *int      `json:"email_upstream_status,omitempty"`
	EmailID             string    `json:"email_id,omitempty"`
	IdempotencyKey      string    `json:"idempotency_key,omitempty"`
	StatusTag           string    `json:"status_tag"`
	TotalMs             *int64    `json:"t_total_ms,omitempty"`
	TranscribeMs        *int64    `json:"t_transcribe_ms,omitempty"`
	SummarizeMs         *int64    `json:"t_summarize_ms,omitempty"`
	EmailMs             *int64    `json:"t_email_ms,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}
