package mailer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/summarize"
	"voicenotes-go/internal/types"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last+tag@example.org"}
	invalid := []string{"", "no-at.example.com", "two@@example.com", "a@b", "has space@example.com"}
	for _, addr := range valid {
		if !ValidEmail(addr) {
			t.Errorf("ValidEmail(%q) = false", addr)
		}
	}
	for _, addr := range invalid {
		if ValidEmail(addr) {
			t.Errorf("ValidEmail(%q) = true", addr)
		}
	}
}

func TestSendSetsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		w.Write([]byte(`{"id":"email-123"}`))
	}))
	defer srv.Close()

	c := New("rk", "notes@example.com", "", testLog())
	c.Endpoint = srv.URL

	rcpt, err := c.Send(context.Background(), Message{To: "a@b.co", Subject: "s", TraceID: "trace-9"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotKey != "sv-email-trace-9" {
		t.Errorf("Idempotency-Key = %q", gotKey)
	}
	if rcpt.ID != "email-123" || rcpt.UpstreamStatus != 200 || rcpt.Duplicate {
		t.Errorf("receipt = %+v", rcpt)
	}
}

func TestSendConflictIsDuplicateNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := New("rk", "notes@example.com", "", testLog())
	c.Endpoint = srv.URL

	rcpt, err := c.Send(context.Background(), Message{To: "a@b.co", TraceID: "t"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rcpt.Duplicate || rcpt.UpstreamStatus != http.StatusConflict {
		t.Errorf("receipt = %+v", rcpt)
	}
}

func TestSendUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"bad from"}`))
	}))
	defer srv.Close()

	c := New("rk", "notes@example.com", "", testLog())
	c.Endpoint = srv.URL

	rcpt, err := c.Send(context.Background(), Message{To: "a@b.co", TraceID: "t"})
	var upstream *types.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v", err)
	}
	if rcpt.UpstreamStatus != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rcpt.UpstreamStatus)
	}
}

func TestComposeSummaryEmail(t *testing.T) {
	out := summarize.Output{
		Title:       "Budget sync",
		Summary:     "We agreed on Q4 <numbers>.",
		Bullets:     []string{"cut spend"},
		ActionItems: []string{"email finance"},
		Tags:        []string{"finance"},
	}
	subject, htmlBody, textBody := ComposeSummaryEmail(out, "trace-1")

	if subject != "Budget sync" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(htmlBody, "&lt;numbers&gt;") {
		t.Error("html body must escape summary text")
	}
	if !strings.Contains(htmlBody, "trace-1") || !strings.Contains(textBody, "trace-1") {
		t.Error("trace footer missing")
	}
	if !strings.Contains(textBody, "- cut spend") || !strings.Contains(textBody, "- email finance") {
		t.Error("text lists missing")
	}
}

func TestComposeSummaryEmailDefaultSubject(t *testing.T) {
	subject, _, _ := ComposeSummaryEmail(summarize.Output{}, "t")
	if subject != "Your voice note summary" {
		t.Errorf("subject = %q", subject)
	}
}
