package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/types"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestTranscribeReadsNestedTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello budget meeting","confidence":0.97}]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "dg-key", "", testLog())
	res, err := c.Transcribe(context.Background(), Request{SignedURL: "https://signed/audio.m4a"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "hello budget meeting" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if res.Confidence == nil || *res.Confidence != 0.97 {
		t.Errorf("confidence = %v", res.Confidence)
	}
}

func TestTranscribeFallsBackToParagraphs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"","paragraphs":{"transcript":"from paragraphs"}}]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", testLog())
	res, err := c.Transcribe(context.Background(), Request{SignedURL: "u"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "from paragraphs" {
		t.Errorf("transcript = %q", res.Transcript)
	}
}

func TestTranscribeEmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"  "}]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", testLog())
	_, err := c.Transcribe(context.Background(), Request{SignedURL: "u"})
	if !errors.Is(err, types.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestTranscribeUnsupportedFormatTriggersTranscode(t *testing.T) {
	var transcodeCalls atomic.Int32
	transcoder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transcodeCalls.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer transcoder.Close()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"err_msg":"unsupported audio format"}`))
	}))
	defer provider.Close()

	c := New(provider.URL, "k", transcoder.URL, testLog())
	_, err := c.Transcribe(context.Background(), Request{
		SignedURL:   "u",
		RecordingID: "rec-1",
		StoragePath: "recordings/u1/a.opus",
	})

	var unsupported *types.UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedFormatError", err)
	}
	if got := transcodeCalls.Load(); got != 1 {
		t.Errorf("transcode calls = %d, want 1", got)
	}
}

func TestTranscribePlainBadRequestDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"err_msg":"bad credentials"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", testLog())
	_, err := c.Transcribe(context.Background(), Request{SignedURL: "u"})

	var upstream *types.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upstream.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", upstream.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"after retry"}]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", testLog())
	res, err := c.Transcribe(context.Background(), Request{SignedURL: "u"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "after retry" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if got := calls.Load(); got < 2 {
		t.Errorf("provider calls = %d, want >= 2", got)
	}
}

func TestFormatFromPath(t *testing.T) {
	if got := formatFromPath("recordings/u1/note.M4A"); got != "m4a" {
		t.Errorf("got %q", got)
	}
	if got := formatFromPath("recordings/u1/noext"); got != "unknown" {
		t.Errorf("got %q", got)
	}
}
