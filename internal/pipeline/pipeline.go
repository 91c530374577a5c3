package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/mailer"
	"voicenotes-go/internal/summarize"
	"voicenotes-go/internal/transcribe"
	"voicenotes-go/internal/types"
)

const (
	recordingsPrefix = "recordings/"

	// stageQueued is the initial pipeline_runs stage, before any recording
	// status transition.
	stageQueued = "queued"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetRecording(ctx context.Context, id string) (types.Recording, error)
	CreatePipelineRun(ctx context.Context, run types.PipelineRun) error
	InsertTranscript(ctx context.Context, t types.Transcript) error
	InsertSummary(ctx context.Context, sum types.Summary) error
	SaveRunRecord(ctx context.Context, r types.RunRecord) error
}

// Signer produces a time-limited read URL for a stored audio object.
type Signer interface {
	SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript, styleKey string) (summarize.Output, error)
}

type StatusTracker interface {
	Set(ctx context.Context, recordingID string, status types.Status, lastError *string) error
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error)
}

// Orchestrator drives one recording through transcription, summarization
// and the optional email tail.
type Orchestrator struct {
	Store       Store
	Signer      Signer
	Transcriber Transcriber
	Summarizer  Summarizer
	Tracker     StatusTracker
	Mailer      Mailer
	SignedTTL   time.Duration
	Log         *logrus.Entry
}

type RunRequest struct {
	RecordingID string
	StoragePath string
	// RunID lets the caller pin the run-history row id; generated when empty.
	RunID       string
	TraceID     string
	NotifyEmail string
	StyleKey    string
	UserID      string
	UserEmail   string
}

type RunResult struct {
	TraceID     string
	RecordingID string
	RunID       string
	EmailID     string
}

// NormalizeStoragePath canonicalizes a caller-supplied object path: trims
// whitespace, strips a leading slash, prefixes the recordings area when
// absent and collapses doubled slashes.
func NormalizeStoragePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "/")
	if p != "" && !strings.HasPrefix(p, recordingsPrefix) {
		p = recordingsPrefix + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

func validateStoragePath(p string) error {
	object := strings.TrimPrefix(p, recordingsPrefix)
	if object == "" {
		return types.ErrInvalidPath
	}
	if strings.Contains(p, "..") {
		return types.ErrInvalidPath
	}
	return nil
}

// Run executes the full pipeline. The run record is written best-effort on
// every exit path so history and metrics see failed runs too.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	trace := req.TraceID
	if trace == "" {
		trace = TraceFrom(ctx)
	}
	if trace == "" {
		trace = uuid.New().String()
	}
	ctx = WithTrace(ctx, trace)
	log := o.Log.WithField("trace", trace)

	if req.RecordingID == "" {
		return RunResult{TraceID: trace}, types.ErrMissingParams
	}

	// Ownership is not checked here: the pipeline writes with service scope
	// and trusts the authenticated caller with any recording id.
	rec, err := o.Store.GetRecording(ctx, req.RecordingID)
	if err != nil {
		return RunResult{TraceID: trace}, err
	}

	storagePath := strings.TrimSpace(req.StoragePath)
	if storagePath == "" {
		// Self-heal: a caller that only knows the recording id gets the
		// path from the recording row.
		storagePath = rec.StoragePath
	}
	if strings.TrimSpace(storagePath) == "" {
		return RunResult{TraceID: trace}, types.ErrMissingParams
	}
	storagePath = NormalizeStoragePath(storagePath)
	if err := validateStoragePath(storagePath); err != nil {
		return RunResult{TraceID: trace}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	started := time.Now()
	record := types.RunRecord{
		ID:             runID,
		UserID:         req.UserID,
		AudioPath:      storagePath,
		IdempotencyKey: "sv-email-" + trace,
		CreatedAt:      started,
	}

	fail := func(stage string, err error) (RunResult, error) {
		msg := err.Error()
		if terr := o.Tracker.Set(ctx, req.RecordingID, types.StatusError, &msg); terr != nil {
			log.WithError(terr).Error("status write failed while failing run")
		}
		record.StatusTag = "error"
		total := time.Since(started).Milliseconds()
		record.TotalMs = &total
		o.saveRecord(ctx, log, record)
		log.WithFields(logrus.Fields{"stage": stage, "error": msg}).Error("pipeline run failed")
		return RunResult{TraceID: trace, RecordingID: req.RecordingID, RunID: runID}, err
	}

	// The run row starts in queued; stage writes from the tracker move it
	// forward once the pipeline is underway.
	if err := o.Store.CreatePipelineRun(ctx, types.PipelineRun{
		ID:          uuid.New().String(),
		RecordingID: req.RecordingID,
		UserID:      req.UserID,
		Stage:       stageQueued,
		Progress:    0,
		Step:        0,
		TraceID:     trace,
	}); err != nil {
		log.WithError(err).Warn("pipeline run row create failed")
	}

	if err := o.Tracker.Set(ctx, req.RecordingID, types.StatusUploading, nil); err != nil {
		return fail("uploading", err)
	}

	signedURL, err := o.Signer.SignedURL(ctx, storagePath, o.SignedTTL)
	if err != nil {
		return fail("uploading", err)
	}

	if err := o.Tracker.Set(ctx, req.RecordingID, types.StatusTranscribing, nil); err != nil {
		return fail("transcribing", err)
	}
	transcribeStart := time.Now()
	tr, err := o.Transcriber.Transcribe(ctx, transcribe.Request{
		SignedURL:   signedURL,
		RecordingID: req.RecordingID,
		StoragePath: storagePath,
		TraceID:     trace,
	})
	transcribeMs := time.Since(transcribeStart).Milliseconds()
	record.TranscribeMs = &transcribeMs
	if err != nil {
		return fail("transcribing", err)
	}
	record.TranscriptLen = len(tr.Transcript)

	if err := o.Store.InsertTranscript(ctx, types.Transcript{
		RecordingID: req.RecordingID,
		Text:        tr.Transcript,
		Confidence:  tr.Confidence,
	}); err != nil {
		return fail("transcribing", err)
	}

	if err := o.Tracker.Set(ctx, req.RecordingID, types.StatusSummarizing, nil); err != nil {
		return fail("summarizing", err)
	}
	summarizeStart := time.Now()
	out, err := o.Summarizer.Summarize(ctx, tr.Transcript, req.StyleKey)
	summarizeMs := time.Since(summarizeStart).Milliseconds()
	record.SummarizeMs = &summarizeMs
	if err != nil {
		return fail("summarizing", err)
	}
	record.SummaryLen = len(out.Summary)

	if err := o.Store.InsertSummary(ctx, types.Summary{
		RecordingID: req.RecordingID,
		Title:       out.Title,
		Summary:     out.Summary,
		Bullets:     out.Bullets,
		ActionItems: out.ActionItems,
		Tags:        out.Tags,
		Confidence:  out.Confidence,
		StyleKey:    out.StyleKey,
	}); err != nil {
		return fail("summarizing", err)
	}

	if err := o.Tracker.Set(ctx, req.RecordingID, types.StatusReady, nil); err != nil {
		return fail("finalizing", err)
	}

	result := RunResult{TraceID: trace, RecordingID: req.RecordingID, RunID: runID}

	// Email tail. The recording is already ready; a bad address fails the
	// request without touching recording status, and a provider failure is
	// logged and swallowed.
	to := req.NotifyEmail
	if to == "" {
		to = req.UserEmail
	}
	if to == "" {
		record.StatusTag = "success"
		total := time.Since(started).Milliseconds()
		record.TotalMs = &total
		o.saveRecord(ctx, log, record)
		return result, nil
	}

	if !mailer.ValidEmail(to) {
		record.StatusTag = "invalid_email"
		total := time.Since(started).Milliseconds()
		record.TotalMs = &total
		o.saveRecord(ctx, log, record)
		return result, types.ErrInvalidEmail
	}

	subject, htmlBody, textBody := mailer.ComposeSummaryEmail(out, trace)
	record.EmailTo = to
	record.EmailSubject = subject

	emailStart := time.Now()
	rcpt, err := o.Mailer.Send(ctx, mailer.Message{
		To:      to,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
		TraceID: trace,
	})
	emailMs := time.Since(emailStart).Milliseconds()
	record.EmailMs = &emailMs
	if rcpt.UpstreamStatus != 0 {
		upstream := rcpt.UpstreamStatus
		record.EmailUpstreamStatus = &upstream
	}
	record.EmailID = rcpt.ID
	if err != nil {
		log.WithError(err).Warn("summary email send failed")
	}
	result.EmailID = rcpt.ID

	record.StatusTag = "success"
	total := time.Since(started).Milliseconds()
	record.TotalMs = &total
	o.saveRecord(ctx, log, record)
	return result, nil
}

func (o *Orchestrator) saveRecord(ctx context.Context, log *logrus.Entry, record types.RunRecord) {
	if err := o.Store.SaveRunRecord(ctx, record); err != nil {
		log.WithError(err).Warn("run record write failed")
	}
}
