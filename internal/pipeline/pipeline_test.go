package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/mailer"
	"voicenotes-go/internal/summarize"
	"voicenotes-go/internal/transcribe"
	"voicenotes-go/internal/types"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type fakeStore struct {
	recordings  map[string]types.Recording
	transcripts []types.Transcript
	summaries   []types.Summary
	records     []types.RunRecord
	runs        []types.PipelineRun
}

func (f *fakeStore) GetRecording(_ context.Context, id string) (types.Recording, error) {
	rec, ok := f.recordings[id]
	if !ok {
		return types.Recording{}, types.ErrRecordingNotFound
	}
	return rec, nil
}

func (f *fakeStore) CreatePipelineRun(_ context.Context, run types.PipelineRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) InsertTranscript(_ context.Context, t types.Transcript) error {
	f.transcripts = append(f.transcripts, t)
	return nil
}

func (f *fakeStore) InsertSummary(_ context.Context, sum types.Summary) error {
	f.summaries = append(f.summaries, sum)
	return nil
}

func (f *fakeStore) SaveRunRecord(_ context.Context, r types.RunRecord) error {
	f.records = append(f.records, r)
	return nil
}

type fakeSigner struct{ url string }

func (f *fakeSigner) SignedURL(_ context.Context, object string, _ time.Duration) (string, error) {
	if f.url == "" {
		return "https://signed.example/" + object, nil
	}
	return f.url, nil
}

type fakeTranscriber struct {
	result transcribe.Result
	err    error
	got    transcribe.Request
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req transcribe.Request) (transcribe.Result, error) {
	f.got = req
	return f.result, f.err
}

type fakeSummarizer struct {
	out summarize.Output
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, styleKey string) (summarize.Output, error) {
	out := f.out
	out.StyleKey = summarize.ResolveStyle(styleKey)
	return out, f.err
}

type fakeTracker struct {
	statuses []types.Status
	lastErrs []*string
	failOn   types.Status
}

func (f *fakeTracker) Set(_ context.Context, _ string, status types.Status, lastError *string) error {
	f.statuses = append(f.statuses, status)
	f.lastErrs = append(f.lastErrs, lastError)
	if f.failOn != "" && status == f.failOn {
		return errors.New("tracker write failed")
	}
	return nil
}

type fakeMailer struct {
	receipt mailer.Receipt
	err     error
	got     *mailer.Message
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) (mailer.Receipt, error) {
	f.got = &msg
	return f.receipt, f.err
}

func newOrchestrator(store *fakeStore, tr *fakeTranscriber, sum *fakeSummarizer, track *fakeTracker, mail *fakeMailer) *Orchestrator {
	return &Orchestrator{
		Store:       store,
		Signer:      &fakeSigner{},
		Transcriber: tr,
		Summarizer:  sum,
		Tracker:     track,
		Mailer:      mail,
		SignedTTL:   time.Hour,
		Log:         testLog(),
	}
}

func happyParts() (*fakeStore, *fakeTranscriber, *fakeSummarizer, *fakeTracker, *fakeMailer) {
	conf := 0.95
	store := &fakeStore{recordings: map[string]types.Recording{
		"rec-1":      {ID: "rec-1", UserID: "u1", StoragePath: "recordings/u1/note.m4a", Status: types.StatusLocal},
		"rec-nopath": {ID: "rec-nopath", UserID: "u1", Status: types.StatusLocal},
	}}
	return store,
		&fakeTranscriber{result: transcribe.Result{Transcript: "we talked about the budget", Confidence: &conf}},
		&fakeSummarizer{out: summarize.Output{Title: "Budget", Summary: "Budget talk.", Bullets: []string{"b"}, ActionItems: []string{}, Tags: []string{}, Confidence: 0.9}},
		&fakeTracker{},
		&fakeMailer{receipt: mailer.Receipt{ID: "em-1", UpstreamStatus: 200}}
}

func TestRunHappyPath(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	res, err := o.Run(context.Background(), RunRequest{
		RecordingID: "rec-1",
		StoragePath: "u1/note.m4a",
		UserID:      "u1",
		UserEmail:   "user@example.com",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TraceID == "" || res.RunID == "" {
		t.Errorf("result = %+v", res)
	}
	if res.EmailID != "em-1" {
		t.Errorf("email id = %q", res.EmailID)
	}

	want := []types.Status{types.StatusUploading, types.StatusTranscribing, types.StatusSummarizing, types.StatusReady}
	if len(track.statuses) != len(want) {
		t.Fatalf("statuses = %v", track.statuses)
	}
	for i, s := range want {
		if track.statuses[i] != s {
			t.Errorf("status[%d] = %q, want %q", i, track.statuses[i], s)
		}
	}

	if len(store.transcripts) != 1 || store.transcripts[0].Text != "we talked about the budget" {
		t.Errorf("transcripts = %+v", store.transcripts)
	}
	if len(store.summaries) != 1 || store.summaries[0].Title != "Budget" {
		t.Errorf("summaries = %+v", store.summaries)
	}
	if tr.got.StoragePath != "recordings/u1/note.m4a" {
		t.Errorf("storage path = %q", tr.got.StoragePath)
	}
	if mail.got == nil || mail.got.To != "user@example.com" {
		t.Errorf("mail = %+v", mail.got)
	}

	if len(store.records) != 1 {
		t.Fatalf("records = %d", len(store.records))
	}
	rec := store.records[0]
	if rec.StatusTag != "success" || rec.TranscriptLen == 0 || rec.SummaryLen == 0 {
		t.Errorf("record = %+v", rec)
	}
	if rec.EmailUpstreamStatus == nil || *rec.EmailUpstreamStatus != 200 {
		t.Errorf("email status = %v", rec.EmailUpstreamStatus)
	}
	if rec.IdempotencyKey != "sv-email-"+res.TraceID {
		t.Errorf("idempotency key = %q", rec.IdempotencyKey)
	}
}

func TestRunInvalidEmailFailsRequestButStatusStaysReady(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/note.m4a",
		NotifyEmail: "not-an-email",
		UserID:      "u1",
	})
	if !errors.Is(err, types.ErrInvalidEmail) {
		t.Fatalf("err = %v, want ErrInvalidEmail", err)
	}

	last := track.statuses[len(track.statuses)-1]
	if last != types.StatusReady {
		t.Errorf("final status = %q, want ready", last)
	}
	if mail.got != nil {
		t.Error("mail sent for invalid address")
	}
	if len(store.records) != 1 || store.records[0].StatusTag != "invalid_email" {
		t.Errorf("records = %+v", store.records)
	}
}

func TestRunEmailSendFailureIsSwallowed(t *testing.T) {
	store, tr, sum, track, _ := happyParts()
	mail := &fakeMailer{
		receipt: mailer.Receipt{UpstreamStatus: 500},
		err:     &types.UpstreamError{Service: "email", Status: 500},
	}
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/note.m4a",
		NotifyEmail: "user@example.com",
		UserID:      "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.records[0].StatusTag != "success" {
		t.Errorf("status tag = %q", store.records[0].StatusTag)
	}
	if store.records[0].EmailUpstreamStatus == nil || *store.records[0].EmailUpstreamStatus != 500 {
		t.Errorf("email status = %v", store.records[0].EmailUpstreamStatus)
	}
}

func TestRunNoEmailAddressSkipsTail(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/note.m4a",
		UserID:      "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mail.got != nil {
		t.Error("mail sent without an address")
	}
	if store.records[0].StatusTag != "success" {
		t.Errorf("status tag = %q", store.records[0].StatusTag)
	}
}

func TestRunTranscriptionFailure(t *testing.T) {
	store, _, sum, track, mail := happyParts()
	tr := &fakeTranscriber{err: &types.UpstreamError{Service: "transcription", Status: 502}}
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/note.m4a",
		UserID:      "u1",
	})
	var upstream *types.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v", err)
	}

	last := track.statuses[len(track.statuses)-1]
	if last != types.StatusError {
		t.Errorf("final status = %q, want error", last)
	}
	if track.lastErrs[len(track.lastErrs)-1] == nil {
		t.Error("last_error not recorded")
	}
	if len(store.summaries) != 0 {
		t.Error("summary written for failed run")
	}
	if len(store.records) != 1 || store.records[0].StatusTag != "error" {
		t.Errorf("records = %+v", store.records)
	}
}

func TestRunMissingParams(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{StoragePath: "recordings/a.m4a"})
	if !errors.Is(err, types.ErrMissingParams) {
		t.Fatalf("err = %v", err)
	}
	// No request path and none on the recording row either.
	_, err = o.Run(context.Background(), RunRequest{RecordingID: "rec-nopath", StoragePath: "   "})
	if !errors.Is(err, types.ErrMissingParams) {
		t.Fatalf("err = %v", err)
	}
	if len(track.statuses) != 0 {
		t.Error("status touched before validation")
	}
}

func TestRunSelfHealsStoragePathFromRecording(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	res, err := o.Run(context.Background(), RunRequest{RecordingID: "rec-1", UserID: "u1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.got.StoragePath != "recordings/u1/note.m4a" {
		t.Errorf("storage path = %q, want path from recording row", tr.got.StoragePath)
	}
	if res.RecordingID != "rec-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunUnknownRecording(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	_, err := o.Run(context.Background(), RunRequest{RecordingID: "rec-missing", StoragePath: "recordings/u1/a.m4a"})
	if !errors.Is(err, types.ErrRecordingNotFound) {
		t.Fatalf("err = %v, want ErrRecordingNotFound", err)
	}
	if len(track.statuses) != 0 {
		t.Error("status touched for unknown recording")
	}
	if len(store.runs) != 0 {
		t.Error("run row created for unknown recording")
	}
}

func TestRunCreatesQueuedRunRow(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	if _, err := o.Run(context.Background(), RunRequest{RecordingID: "rec-1", UserID: "u1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.runs) != 1 {
		t.Fatalf("runs = %d", len(store.runs))
	}
	run := store.runs[0]
	if run.Stage != "queued" || run.Progress != 0 || run.Step != 0 {
		t.Errorf("run row = %+v, want queued/0/0", run)
	}
}

func TestRunUsesCallerRunID(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	res, err := o.Run(context.Background(), RunRequest{RecordingID: "rec-1", RunID: "run-42", UserID: "u1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "run-42" {
		t.Errorf("run id = %q", res.RunID)
	}
	if store.records[0].ID != "run-42" {
		t.Errorf("record id = %q", store.records[0].ID)
	}
}

func TestRunInvalidPath(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	for _, p := range []string{"recordings/", "/", "recordings/../etc/passwd"} {
		_, err := o.Run(context.Background(), RunRequest{RecordingID: "rec-1", StoragePath: p})
		if !errors.Is(err, types.ErrInvalidPath) {
			t.Errorf("path %q: err = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestNormalizeStoragePath(t *testing.T) {
	cases := map[string]string{
		"  u1/a.m4a ":           "recordings/u1/a.m4a",
		"/u1/a.m4a":             "recordings/u1/a.m4a",
		"recordings//u1//a.m4a": "recordings/u1/a.m4a",
		"recordings/u1/a.m4a":   "recordings/u1/a.m4a",
		"":                      "",
	}
	for in, want := range cases {
		if got := NormalizeStoragePath(in); got != want {
			t.Errorf("NormalizeStoragePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunUsesContextTrace(t *testing.T) {
	store, tr, sum, track, mail := happyParts()
	o := newOrchestrator(store, tr, sum, track, mail)

	ctx := WithTrace(context.Background(), "ctx-trace")
	res, err := o.Run(ctx, RunRequest{
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/a.m4a",
		UserID:      "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TraceID != "ctx-trace" {
		t.Errorf("trace = %q", res.TraceID)
	}
	if tr.got.TraceID != "ctx-trace" {
		t.Errorf("transcriber trace = %q", tr.got.TraceID)
	}
}
