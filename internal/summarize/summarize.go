package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/types"
)

const (
	httpTimeout  = 60 * time.Second
	maxRetryTime = 90 * time.Second

	// Transcripts above maxDirectChars go through the chunked path.
	maxDirectChars = 12000
	chunkChars     = 3500

	defaultConfidence = 0.8
)

// Client produces structured summaries through an OpenAI-compatible chat
// completion endpoint.
type Client struct {
	URL    string
	APIKey string
	Model  string
	HTTP   *http.Client
	Log    *logrus.Entry
}

func New(url, apiKey, model string, log *logrus.Entry) *Client {
	return &Client{
		URL:    url,
		APIKey: apiKey,
		Model:  model,
		HTTP:   &http.Client{Timeout: httpTimeout},
		Log:    log,
	}
}

// Output is the normalized model response. Slices are never nil and
// confidence falls back to a fixed default when the model omits it.
type Output struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Bullets     []string `json:"bullets"`
	ActionItems []string `json:"action_items"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
	StyleKey    string   `json:"-"`
}

func (c *Client) Summarize(ctx context.Context, transcript, styleKey string) (Output, error) {
	style := ResolveStyle(styleKey)

	if len(transcript) > maxDirectChars {
		return c.summarizeChunked(ctx, transcript, style)
	}

	out, err := c.complete(ctx, summaryPrompt(transcript, style))
	if err != nil {
		return Output{}, err
	}
	out.StyleKey = style
	return out, nil
}

// summarizeChunked summarizes fixed-size slices sequentially and then
// merges the partial summaries. Order matters: partials are fed to the
// merge prompt in transcript order.
func (c *Client) summarizeChunked(ctx context.Context, transcript, style string) (Output, error) {
	chunks := splitChunks(transcript, chunkChars)
	c.Log.WithFields(logrus.Fields{"chunks": len(chunks), "chars": len(transcript)}).Info("chunked summarization")

	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		partial, err := c.complete(ctx, partialPrompt(chunk, i+1, len(chunks)))
		if err != nil {
			return Output{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials = append(partials, partial.Summary)
	}

	out, err := c.complete(ctx, mergePrompt(partials, style))
	if err != nil {
		return Output{}, fmt.Errorf("merge: %w", err)
	}
	out.StyleKey = style
	return out, nil
}

func splitChunks(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

const jsonShape = `{"title": string, "summary": string, "bullets": string[], "action_items": string[], "tags": string[], "confidence": number}`

func summaryPrompt(transcript, style string) string {
	return "You summarize voice notes. " + stylePrompts[style] +
		"\nReturn ONLY a JSON object with this exact shape, no prose:\n" + jsonShape +
		"\n\nTranscript:\n" + transcript
}

func partialPrompt(chunk string, index, total int) string {
	return fmt.Sprintf("This is part %d of %d of a longer voice note. "+
		"Summarize just this part in the summary field. "+
		"Return ONLY a JSON object with this exact shape, no prose:\n%s\n\nTranscript part:\n%s",
		index, total, jsonShape, chunk)
}

func mergePrompt(partials []string, style string) string {
	var b strings.Builder
	b.WriteString("Below are sequential partial summaries of one voice note. ")
	b.WriteString(stylePrompts[style])
	b.WriteString("\nMerge them into a single coherent result. Return ONLY a JSON object with this exact shape, no prose:\n")
	b.WriteString(jsonShape)
	b.WriteString("\n\n")
	for i, p := range partials {
		fmt.Fprintf(&b, "Part %d:\n%s\n\n", i+1, p)
	}
	return b.String()
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (Output, error) {
	reqBody := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)

	var out Output
	var lastErr error

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, httpTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.URL, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 {
			lastErr = &types.UpstreamError{Service: "summarization", Status: resp.StatusCode, Body: string(body)}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(lastErr)
			}
			return lastErr
		}

		var chat chatResponse
		if err := json.Unmarshal(body, &chat); err != nil || len(chat.Choices) == 0 {
			lastErr = &types.UpstreamError{Service: "summarization", Status: resp.StatusCode, Body: string(body), Err: fmt.Errorf("no choices in response")}
			return backoff.Permanent(lastErr)
		}

		parsed, err := parseOutput(chat.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			return lastErr
		}

		out = parsed
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return Output{}, lastErr
	}
	return out, nil
}

// parseOutput decodes the strict-JSON content, tolerating code fences and
// surrounding prose the model sometimes adds.
func parseOutput(content string) (Output, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Output{}, fmt.Errorf("no JSON object in model output")
	}

	var out Output
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return Output{}, fmt.Errorf("decode model output: %w", err)
	}
	return normalize(out), nil
}

func normalize(out Output) Output {
	if out.Bullets == nil {
		out.Bullets = []string{}
	}
	if out.ActionItems == nil {
		out.ActionItems = []string{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		out.Confidence = defaultConfidence
	}
	return out
}
