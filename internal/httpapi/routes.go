package httpapi

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicenotes-go/internal/metrics"
	"voicenotes-go/internal/pipeline"
	"voicenotes-go/internal/publish"
	"voicenotes-go/internal/redact"
	"voicenotes-go/internal/report"
	"voicenotes-go/internal/store"
	"voicenotes-go/internal/types"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 50
	metricsRunsLimit = 5000
	defaultHours     = 168
	maxHours         = 720
)

type API struct {
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	webhook      *pipeline.WebhookHandler
	redactor     *redact.Redactor
	summarizer   pipeline.Summarizer
	publisher    *publish.Publisher
	tracker      pipeline.StatusTracker
}

func NewAPI(
	st *store.Store,
	orchestrator *pipeline.Orchestrator,
	webhook *pipeline.WebhookHandler,
	redactor *redact.Redactor,
	summarizer pipeline.Summarizer,
	publisher *publish.Publisher,
	tracker pipeline.StatusTracker,
) *API {
	return &API{
		store:        st,
		orchestrator: orchestrator,
		webhook:      webhook,
		redactor:     redactor,
		summarizer:   summarizer,
		publisher:    publisher,
		tracker:      tracker,
	}
}

func registerRoutes(r *gin.Engine, api *API, authSecret, webhookSecret string) {
	r.GET("/healthz", api.handleHealth)

	r.POST("/v1/webhooks/transcription", WebhookAuth(webhookSecret), api.handleWebhook)

	v1 := r.Group("/v1", Auth(authSecret))
	{
		v1.POST("/pipeline/run", api.handleRunPipeline)

		v1.POST("/recordings", api.handleCreateRecording)
		v1.GET("/recordings/:id", api.handleGetRecording)
		v1.POST("/recordings/:id/summarize", api.handleSummarizeRecording)
		v1.POST("/transcode-fallback", api.handleTranscodeFallback)

		v1.POST("/redact", api.handleRedact)
		v1.GET("/redact", api.handleRedactHealth)
		v1.GET("/redact/sample", api.handleRedactSynthetic)

		v1.GET("/runs", api.handleListRuns)
		v1.GET("/runs/export", api.handleExportRuns)
		v1.GET("/runs/:id", api.handleGetRun)
		v1.GET("/metrics", api.handleMetrics)

		v1.POST("/samples/publish", api.handlePublishSample)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleRunPipeline(c *gin.Context) {
	var payload struct {
		RecordingID string `json:"recording_id"`
		StoragePath string `json:"storage_path"`
		RunID       string `json:"run_id"`
		NotifyEmail string `json:"notify_email"`
		StyleKey    string `json:"style_key"`
		TraceID     string `json:"trace_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}

	// body trace_id beats the middleware-derived header trace
	ident := identityFrom(c)
	res, err := a.orchestrator.Run(c.Request.Context(), pipeline.RunRequest{
		RecordingID: payload.RecordingID,
		StoragePath: payload.StoragePath,
		RunID:       payload.RunID,
		NotifyEmail: payload.NotifyEmail,
		StyleKey:    payload.StyleKey,
		TraceID:     payload.TraceID,
		UserID:      ident.UserID,
		UserEmail:   ident.Email,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"trace_id":     res.TraceID,
		"run_id":       res.RunID,
		"recording_id": res.RecordingID,
		"email_id":     res.EmailID,
	})
}

func (a *API) handleWebhook(c *gin.Context) {
	var payload pipeline.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}
	ack, err := a.webhook.Handle(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ack": ack})
}

func (a *API) handleCreateRecording(c *gin.Context) {
	var payload struct {
		FileName string `json:"file_name" binding:"required"`
		MimeType string `json:"mime_type"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}

	ident := identityFrom(c)
	ext := strings.ToLower(path.Ext(payload.FileName))
	now := time.Now().UTC()
	object := path.Join(
		"recordings", ident.UserID,
		now.Format("2006"), now.Format("01"), now.Format("02"),
		uuid.New().String()+ext,
	)
	rec := types.Recording{
		ID:          uuid.New().String(),
		UserID:      ident.UserID,
		StoragePath: object,
		MimeType:    payload.MimeType,
		Status:      types.StatusLocal,
	}
	if err := a.store.CreateRecording(c.Request.Context(), rec); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":        true,
		"recording": rec,
		"upload": gin.H{
			"storage_path": rec.StoragePath,
			"mime_type":    rec.MimeType,
		},
	})
}

func (a *API) handleGetRecording(c *gin.Context) {
	ident := identityFrom(c)
	rec, err := a.store.GetRecordingOwned(c.Request.Context(), c.Param("id"), ident.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "recording": rec})
}

// handleSummarizeRecording is the polling-mode completion: the transcript
// already exists and the summary row is replaced on rerun, unlike the
// orchestrator path which always inserts a fresh row.
func (a *API) handleSummarizeRecording(c *gin.Context) {
	var payload struct {
		StyleKey string `json:"style_key"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil && c.Request.ContentLength > 0 {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}

	ident := identityFrom(c)
	ctx := c.Request.Context()
	rec, err := a.store.GetRecordingOwned(ctx, c.Param("id"), ident.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	transcript, err := a.store.LatestTranscript(ctx, rec.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := a.tracker.Set(ctx, rec.ID, types.StatusSummarizing, nil); err != nil {
		respondError(c, err)
		return
	}
	out, err := a.summarizer.Summarize(ctx, transcript.Text, payload.StyleKey)
	if err != nil {
		msg := err.Error()
		_ = a.tracker.Set(ctx, rec.ID, types.StatusError, &msg)
		respondError(c, err)
		return
	}

	sum := types.Summary{
		RecordingID: rec.ID,
		Title:       out.Title,
		Summary:     out.Summary,
		Bullets:     out.Bullets,
		ActionItems: out.ActionItems,
		Tags:        out.Tags,
		Confidence:  out.Confidence,
		StyleKey:    out.StyleKey,
	}
	if err := a.store.UpsertSummary(ctx, sum); err != nil {
		respondError(c, err)
		return
	}
	if err := a.tracker.Set(ctx, rec.ID, types.StatusReady, nil); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "summary": sum})
}

// handleTranscodeFallback records that a recording arrived in a container the
// transcription provider rejected. The recording is parked in error state with
// a message the client can surface; the actual transcode is the uploader's
// problem. Like the pipeline itself, the write runs with service scope and
// trusts the authenticated caller with any recording id.
func (a *API) handleTranscodeFallback(c *gin.Context) {
	var payload struct {
		RecordingID    string `json:"recording_id"`
		StoragePath    string `json:"storage_path"`
		OriginalFormat string `json:"original_format"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}
	if payload.RecordingID == "" || payload.StoragePath == "" {
		respondError(c, types.ErrMissingParams)
		return
	}

	format := payload.OriginalFormat
	if format == "" {
		format = strings.TrimPrefix(path.Ext(payload.StoragePath), ".")
	}
	if format == "" {
		format = "unknown"
	}

	msg := "Unsupported format: " + format + ". Transcode required."
	if err := a.tracker.Set(c.Request.Context(), payload.RecordingID, types.StatusError, &msg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "recording_id": payload.RecordingID, "last_error": msg})
}

func (a *API) handleRedact(c *gin.Context) {
	// format and featureFlag are accepted for wire compatibility and
	// ignored: output is always JSON and the redaction switch is
	// server-owned.
	var payload struct {
		Text        string `json:"text"`
		Format      string `json:"format"`
		FeatureFlag *bool  `json:"featureFlag"`
		Synthetic   bool   `json:"synthetic"`
		Context     struct {
			Vertical string `json:"vertical"`
		} `json:"context"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}

	if payload.Synthetic {
		res, err := a.redactor.RedactSynthetic(c.Request.Context(), payload.Context.Vertical)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	if payload.Text == "" {
		respondError(c, types.NewValidation("missing_text", "text is required"))
		return
	}
	res, err := a.redactor.Redact(c.Request.Context(), payload.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) handleRedactHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                    true,
		"enabled":               a.redactor.Enabled,
		"enrichment_configured": a.redactor.Enrich != nil,
	})
}

func (a *API) handleRedactSynthetic(c *gin.Context) {
	res, err := a.redactor.RedactSynthetic(c.Request.Context(), c.Query("vertical"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) handleListRuns(c *gin.Context) {
	ident := identityFrom(c)
	limit := queryInt(c, "limit", defaultRunsLimit, maxRunsLimit)

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, types.NewValidation("bad_cursor", "cursor must be RFC3339"))
			return
		}
		cursor = &t
	}

	runs, err := a.store.ListRunRecords(c.Request.Context(), ident.UserID, limit, cursor)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"ok": true, "runs": runs}
	if len(runs) == limit {
		resp["next_cursor"] = runs[len(runs)-1].CreatedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetRun(c *gin.Context) {
	ident := identityFrom(c)
	run, err := a.store.GetRunRecord(c.Request.Context(), ident.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "run": run})
}

func (a *API) handleExportRuns(c *gin.Context) {
	ident := identityFrom(c)
	since, _, err := parseSince(c)
	if err != nil {
		respondError(c, err)
		return
	}

	runs, err := a.store.RunRecordsSince(c.Request.Context(), ident.UserID, since, metricsRunsLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	buf, err := report.RunsWorkbook(runs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="runs.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (a *API) handleMetrics(c *gin.Context) {
	ident := identityFrom(c)
	since, window, err := parseSince(c)
	if err != nil {
		respondError(c, err)
		return
	}

	limit := queryInt(c, "limit", metricsRunsLimit, metricsRunsLimit)
	runs, err := a.store.RunRecordsSince(c.Request.Context(), ident.UserID, since, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics.Compute(runs, window))
}

func (a *API) handlePublishSample(c *gin.Context) {
	var payload struct {
		Title        string         `json:"title"`
		Body         string         `json:"body"`
		Vertical     string         `json:"vertical"`
		CountsByType map[string]int `json:"counts_by_type"`
		UsedPresidio bool           `json:"used_presidio"`
		PDFBase64    string         `json:"pdf_base64"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, types.NewValidation("bad_json", err.Error()))
		return
	}

	ident := identityFrom(c)
	res, err := a.publisher.Publish(c.Request.Context(), publish.Request{
		UserID:         ident.UserID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Title:          payload.Title,
		Body:           payload.Body,
		Vertical:       payload.Vertical,
		CountsByType:   payload.CountsByType,
		UsedPresidio:   payload.UsedPresidio,
		PDFBase64:      payload.PDFBase64,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func queryInt(c *gin.Context, key string, def, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// parseSince resolves the lookback window for metrics and exports. An
// explicit since=RFC3339 wins; otherwise hours is clamped to [1, maxHours].
func parseSince(c *gin.Context) (time.Time, string, error) {
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, "", types.NewValidation("bad_since", "since must be RFC3339")
		}
		return t, "since " + t.Format(time.RFC3339), nil
	}

	hours := defaultHours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return time.Time{}, "", types.NewValidation("bad_hours", "hours must be a positive integer")
		}
		if n > maxHours {
			n = maxHours
		}
		hours = n
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour), strconv.Itoa(hours) + "h", nil
}
