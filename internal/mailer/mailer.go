package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/types"
)

const (
	resendEndpoint = "https://api.resend.com/emails"
	httpTimeout    = 15 * time.Second
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether addr looks like a deliverable address. The
// check is deliberately loose; the provider does the real validation.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// Client sends through a Resend-compatible transactional email API.
type Client struct {
	Endpoint string
	APIKey   string
	From     string
	ReplyTo  string
	HTTP     *http.Client
	Log      *logrus.Entry
}

func New(apiKey, from, replyTo string, log *logrus.Entry) *Client {
	return &Client{
		Endpoint: resendEndpoint,
		APIKey:   apiKey,
		From:     from,
		ReplyTo:  replyTo,
		HTTP:     &http.Client{Timeout: httpTimeout},
		Log:      log,
	}
}

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	TraceID string
}

// Receipt reports the provider outcome. UpstreamStatus is 200 for a fresh
// send and 409 when the idempotency key already delivered this trace.
type Receipt struct {
	ID             string
	UpstreamStatus int
	Duplicate      bool
}

func (c *Client) Send(ctx context.Context, msg Message) (Receipt, error) {
	payload, _ := json.Marshal(map[string]any{
		"from":     c.From,
		"to":       []string{msg.To},
		"subject":  msg.Subject,
		"html":     msg.HTML,
		"text":     msg.Text,
		"reply_to": c.ReplyTo,
	})

	callCtx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	// One email per pipeline run, even across orchestrator retries.
	req.Header.Set("Idempotency-Key", "sv-email-"+msg.TraceID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Receipt{}, &types.UpstreamError{Service: "email", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusConflict:
		// The provider already accepted this key; treat as delivered.
		c.Log.WithField("trace", msg.TraceID).Info("email already sent for trace")
		return Receipt{UpstreamStatus: resp.StatusCode, Duplicate: true}, nil
	case resp.StatusCode >= 400:
		return Receipt{UpstreamStatus: resp.StatusCode},
			&types.UpstreamError{Service: "email", Status: resp.StatusCode, Body: string(body)}
	}

	var sent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &sent); err != nil {
		return Receipt{UpstreamStatus: resp.StatusCode},
			&types.UpstreamError{Service: "email", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return Receipt{ID: sent.ID, UpstreamStatus: resp.StatusCode}, nil
}
