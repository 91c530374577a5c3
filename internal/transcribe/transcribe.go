package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/types"
)

const (
	httpTimeout  = 60 * time.Second
	maxRetryTime = 90 * time.Second
)

// Client calls a Deepgram-compatible speech-to-text endpoint with a signed
// read URL for the audio object.
type Client struct {
	URL          string
	APIKey       string
	TranscodeURL string
	HTTP         *http.Client
	Log          *logrus.Entry
}

func New(url, apiKey, transcodeURL string, log *logrus.Entry) *Client {
	return &Client{
		URL:          url,
		APIKey:       apiKey,
		TranscodeURL: transcodeURL,
		HTTP:         &http.Client{Timeout: httpTimeout},
		Log:          log,
	}
}

type Request struct {
	SignedURL   string
	RecordingID string
	StoragePath string
	TraceID     string
}

type Result struct {
	Transcript string
	Confidence *float64
}

// resultsPayload mirrors the nested provider results object. Some model
// tiers put the text on the alternative itself and others only under
// paragraphs, so both locations are checked.
type resultsPayload struct {
	Channels []struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence *float64 `json:"confidence"`
			Paragraphs *struct {
				Transcript string `json:"transcript"`
			} `json:"paragraphs"`
		} `json:"alternatives"`
	} `json:"channels"`
}

type providerResponse struct {
	Results resultsPayload `json:"results"`
}

func (r *resultsPayload) extract() (string, *float64) {
	if len(r.Channels) == 0 || len(r.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	alt := r.Channels[0].Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" && alt.Paragraphs != nil {
		text = strings.TrimSpace(alt.Paragraphs.Transcript)
	}
	return text, alt.Confidence
}

// ParseResults extracts transcript text and confidence from a bare
// provider results object, as delivered in webhook payloads.
func ParseResults(data []byte) (string, *float64, error) {
	var r resultsPayload
	if err := json.Unmarshal(data, &r); err != nil {
		return "", nil, fmt.Errorf("decode results: %w", err)
	}
	text, confidence := r.extract()
	return text, confidence, nil
}

func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	payload, _ := json.Marshal(map[string]string{"url": req.SignedURL})

	var out Result
	var lastErr error

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, httpTimeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.URL, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Authorization", "Token "+c.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(httpReq)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			lastErr = &types.UpstreamError{Service: "transcription", Status: resp.StatusCode, Body: string(body)}
			return lastErr
		}
		if resp.StatusCode >= 400 {
			if resp.StatusCode == http.StatusBadRequest && looksLikeFormatProblem(body) {
				if err := c.TriggerTranscode(ctx, req); err != nil {
					c.Log.WithError(err).Warn("transcode trigger failed")
				}
				lastErr = &types.UnsupportedFormatError{Detail: string(body)}
				return backoff.Permanent(lastErr)
			}
			lastErr = &types.UpstreamError{Service: "transcription", Status: resp.StatusCode, Body: string(body)}
			return backoff.Permanent(lastErr)
		}

		var parsed providerResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = &types.UpstreamError{Service: "transcription", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
			return backoff.Permanent(lastErr)
		}

		text, confidence := parsed.Results.extract()
		if len(text) < 2 {
			lastErr = types.ErrEmptyTranscript
			return backoff.Permanent(lastErr)
		}

		out = Result{Transcript: text, Confidence: confidence}
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return Result{}, lastErr
	}
	return out, nil
}

// looksLikeFormatProblem classifies a 400 as an audio-format rejection
// rather than a bad request on our side.
func looksLikeFormatProblem(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "unsupported") || strings.Contains(lower, "invalid")
}

// TriggerTranscode asks the fallback transcoder to re-encode the object.
// The current run still fails; the transcoded copy makes a retry succeed.
func (c *Client) TriggerTranscode(ctx context.Context, req Request) error {
	if c.TranscodeURL == "" {
		return fmt.Errorf("no transcoder configured")
	}
	payload, _ := json.Marshal(map[string]string{
		"recording_id":    req.RecordingID,
		"storage_path":    req.StoragePath,
		"original_format": formatFromPath(req.StoragePath),
		"trace_id":        req.TraceID,
	})

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.TranscodeURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &types.UpstreamError{Service: "transcode", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return &types.UpstreamError{Service: "transcode", Status: resp.StatusCode}
	}
	c.Log.WithField("status", resp.StatusCode).Info("transcode fallback triggered")
	return nil
}

func formatFromPath(storagePath string) string {
	ext := strings.TrimPrefix(path.Ext(storagePath), ".")
	if ext == "" {
		return "unknown"
	}
	return strings.ToLower(ext)
}
