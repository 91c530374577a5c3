package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"voicenotes-go/internal/logger"
)

const (
	analyzerTimeout      = 3500 * time.Millisecond
	analyzerRetryTimeout = 500 * time.Millisecond
	anonymizerTimeout    = time.Second
)

// EnrichClient talks to an external PII analysis pair (analyzer +
// anonymizer). Any failure along the way makes the caller fall back to the
// regex-only result.
type EnrichClient struct {
	analyzerURL   string
	anonymizerURL string
	http          *http.Client
	log           *logger.Logger
}

// NewEnrichClient returns nil unless both endpoints are configured.
func NewEnrichClient(analyzerURL, anonymizerURL string, log *logger.Logger) *EnrichClient {
	if analyzerURL == "" || anonymizerURL == "" {
		return nil
	}
	return &EnrichClient{
		analyzerURL:   analyzerURL,
		anonymizerURL: anonymizerURL,
		http:          &http.Client{},
		log:           log,
	}
}

type anonymizerItem struct {
	EntityType string `json:"entity_type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

type anonymizerResult struct {
	Text  string           `json:"text"`
	Items []anonymizerItem `json:"items"`
}

// merge runs the external pass over the original text and folds its findings
// into the regex result. Regex entities win on span overlap. On success the
// returned text is the anonymizer's, not the regex cascade's.
func (c *EnrichClient) merge(ctx context.Context, original string, regex Result) (Result, bool) {
	findings, err := c.analyze(ctx, original)
	if err != nil {
		c.log.WithComponent("redact").WithField("error", err.Error()).Warn("enrichment analyzer failed, regex-only")
		return Result{}, false
	}

	anon, err := c.anonymize(ctx, original, findings)
	if err != nil {
		c.log.WithComponent("redact").WithField("error", err.Error()).Warn("enrichment anonymizer failed, regex-only")
		return Result{}, false
	}

	merged := regex
	merged.UsedPresidio = true
	if anon.Text != "" {
		merged.RedactedText = anon.Text
	}
	for _, item := range anon.Items {
		if overlapsAny(merged.Entities, item.Start, item.End) {
			continue
		}
		merged.Entities = append(merged.Entities, Entity{Type: item.EntityType, Start: item.Start, End: item.End})
		merged.CountsByType[item.EntityType]++
	}
	sort.SliceStable(merged.Entities, func(i, j int) bool { return merged.Entities[i].Start < merged.Entities[j].Start })
	return merged, true
}

func overlapsAny(entities []Entity, start, end int) bool {
	for _, e := range entities {
		if (e.Start <= start && e.End > start) || (e.Start < end && e.End >= end) {
			return true
		}
	}
	return false
}

// analyze posts the original text to the analyzer with a 3.5s budget, then
// exactly one retry at 500ms before giving up.
func (c *EnrichClient) analyze(ctx context.Context, text string) (json.RawMessage, error) {
	body, _ := json.Marshal(map[string]string{"text": text, "language": "en"})

	raw, err := c.postJSON(ctx, c.analyzerURL, body, analyzerTimeout)
	if err != nil {
		raw, err = c.postJSON(ctx, c.analyzerURL, body, analyzerRetryTimeout)
		if err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func (c *EnrichClient) anonymize(ctx context.Context, text string, findings json.RawMessage) (anonymizerResult, error) {
	payload := map[string]any{
		"text":             text,
		"analyzer_results": findings,
		"anonymizers": map[string]any{
			"DEFAULT":       map[string]string{"type": "replace", "new_value": "[REDACTED]"},
			"PERSON":        map[string]string{"type": "replace", "new_value": "[NAME]"},
			"EMAIL_ADDRESS": map[string]string{"type": "replace", "new_value": "[EMAIL]"},
			"PHONE_NUMBER":  map[string]string{"type": "replace", "new_value": "[PHONE]"},
			"DATE_TIME":     map[string]string{"type": "replace", "new_value": "[DATE]"},
			"ORGANIZATION":  map[string]string{"type": "replace", "new_value": "[ORG]"},
		},
	}
	body, _ := json.Marshal(payload)

	raw, err := c.postJSON(ctx, c.anonymizerURL, body, anonymizerTimeout)
	if err != nil {
		return anonymizerResult{}, err
	}
	var out anonymizerResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return anonymizerResult{}, fmt.Errorf("decode anonymizer response: %w", err)
	}
	return out, nil
}

func (c *EnrichClient) postJSON(ctx context.Context, url string, body []byte, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("enrichment endpoint returned %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
