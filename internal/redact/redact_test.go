package redact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voicenotes-go/internal/logger"
	"voicenotes-go/internal/types"
)

func TestRegexEmailRule(t *testing.T) {
	res, err := Regex("please reach me at alice@example.com tomorrow")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if !strings.Contains(res.RedactedText, "[EMAIL]") {
		t.Fatalf("expected [EMAIL] token, got %q", res.RedactedText)
	}
	if strings.Contains(res.RedactedText, "alice@example.com") {
		t.Fatalf("address leaked: %q", res.RedactedText)
	}
	if res.CountsByType["EMAIL"] != 1 {
		t.Fatalf("expected EMAIL count 1, got %d", res.CountsByType["EMAIL"])
	}
}

func TestRegexIdempotentOnPlaceholders(t *testing.T) {
	first, err := Regex("call 555-867-5309 or mail bob@corp.io")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := Regex(first.RedactedText)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.RedactedText != first.RedactedText {
		t.Fatalf("placeholdered text changed:\n first=%q\nsecond=%q", first.RedactedText, second.RedactedText)
	}
	if len(second.Entities) != 0 {
		t.Fatalf("expected no entities on second pass, got %v", second.Entities)
	}
}

func TestRegexInputTooLarge(t *testing.T) {
	_, err := Regex(strings.Repeat("x", MaxInputLen+1))
	if err != types.ErrInputTooLarge {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}

func TestRegexMixedDocument(t *testing.T) {
	text := "Patient Jane Doe visited on 01/02/2024. MRN: ABC-123456. " +
		"Contact jane.doe@clinic.org or 555-123-4567. See https://portal.clinic.org/visit " +
		"from 192.168.1.10. SSN 123-45-6789."
	res, err := Regex(text)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	for _, token := range []string{"[EMAIL]", "[PHONE]", "[LINK]", "[IP]", "[DATE]", "[ID]", "[NAME]"} {
		if !strings.Contains(res.RedactedText, token) {
			t.Errorf("missing %s in %q", token, res.RedactedText)
		}
	}
	for i := 1; i < len(res.Entities); i++ {
		if res.Entities[i].Start < res.Entities[i-1].Start {
			t.Fatalf("entities not sorted by start: %v", res.Entities)
		}
	}
}

func TestRegexEntitySpansNonZero(t *testing.T) {
	res, err := Regex("mail x@y.io now")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	for _, e := range res.Entities {
		if e.End <= e.Start {
			t.Fatalf("zero or negative span: %+v", e)
		}
	}
}

func TestPatternSafety(t *testing.T) {
	if issues := CheckPatternSafety(); len(issues) != 0 {
		t.Fatalf("pattern safety issues: %v", issues)
	}
}

func TestRedactorBypass(t *testing.T) {
	r := New(false, nil, logger.New())
	res, err := r.Redact(context.Background(), "mail alice@example.com")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if res.RedactedText != "mail alice@example.com" {
		t.Fatalf("bypass must return input unchanged, got %q", res.RedactedText)
	}
	if len(res.Entities) != 0 || len(res.CountsByType) != 0 {
		t.Fatalf("bypass must return empty entities/counts, got %v %v", res.Entities, res.CountsByType)
	}
}

func TestRedactorBypassStillEnforcesSizeLimit(t *testing.T) {
	r := New(false, nil, logger.New())
	_, err := r.Redact(context.Background(), strings.Repeat("x", MaxInputLen+1))
	if err != types.ErrInputTooLarge {
		t.Fatalf("expected ErrInputTooLarge with redaction disabled, got %v", err)
	}
}

func TestRedactSynthetic(t *testing.T) {
	r := New(true, nil, logger.New())
	for _, vertical := range []string{"health", "legal", "ops", "unknown"} {
		res, err := r.RedactSynthetic(context.Background(), vertical)
		if err != nil {
			t.Fatalf("%s: %v", vertical, err)
		}
		if !res.Synthetic {
			t.Fatalf("%s: expected synthetic flag", vertical)
		}
		if res.RedactedText == "" {
			t.Fatalf("%s: empty template", vertical)
		}
	}
}

func TestEnrichmentMerge(t *testing.T) {
	analyzer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"entity_type": "PERSON", "start": 0, "end": 4}})
	}))
	defer analyzer.Close()

	anonymizer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(anonymizerResult{
			Text: "[NAME] mailed [EMAIL]",
			Items: []anonymizerItem{
				{EntityType: "PERSON", Start: 0, End: 4},
				// Overlaps the regex EMAIL span and must be discarded.
				{EntityType: "EMAIL_ADDRESS", Start: 12, End: 29},
			},
		})
	}))
	defer anonymizer.Close()

	log := logger.New()
	r := New(true, NewEnrichClient(analyzer.URL, anonymizer.URL, log), log)

	res, err := r.Redact(context.Background(), "Finn mailed alice@example.com")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if !res.UsedPresidio {
		t.Fatal("expected enrichment path")
	}
	if res.RedactedText != "[NAME] mailed [EMAIL]" {
		t.Fatalf("expected anonymizer text, got %q", res.RedactedText)
	}
	if res.CountsByType["PERSON"] != 1 {
		t.Fatalf("expected merged PERSON count, got %v", res.CountsByType)
	}
	if res.CountsByType["EMAIL_ADDRESS"] != 0 {
		t.Fatalf("overlapping external entity must be discarded, got %v", res.CountsByType)
	}
}

func TestEnrichmentFallsBackOnFailure(t *testing.T) {
	analyzer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer analyzer.Close()

	log := logger.New()
	r := New(true, NewEnrichClient(analyzer.URL, analyzer.URL, log), log)

	res, err := r.Redact(context.Background(), "mail alice@example.com")
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if res.UsedPresidio {
		t.Fatal("expected regex-only fallback")
	}
	if !strings.Contains(res.RedactedText, "[EMAIL]") {
		t.Fatalf("regex result expected, got %q", res.RedactedText)
	}
}
