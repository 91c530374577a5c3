package redact

import (
	"context"
	"sort"
	"strings"

	"voicenotes-go/internal/logger"
	"voicenotes-go/internal/types"
)

// Entity is one detected PII span. Offsets refer to positions in the text as
// it stood when the owning rule scanned it — earlier rules may already have
// replaced spans, so offsets are not uniformly relative to the original
// input. Consumers that need exact original offsets must not rely on these.
type Entity struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Result is the outcome of one redaction pass.
type Result struct {
	RedactedText string         `json:"redactedText"`
	Entities     []Entity       `json:"entities"`
	CountsByType map[string]int `json:"entitiesCountByType"`
	UsedPresidio bool           `json:"usedPresidio"`
	Synthetic    bool           `json:"synthetic,omitempty"`
}

// Redactor applies the regex cascade and, when an enrichment client is
// configured, merges in a second opinion from the external analyzer/
// anonymizer pair.
type Redactor struct {
	Enabled bool
	Enrich  *EnrichClient
	Log     *logger.Logger
}

func New(enabled bool, enrich *EnrichClient, log *logger.Logger) *Redactor {
	return &Redactor{Enabled: enabled, Enrich: enrich, Log: log}
}

// Redact scans text for PII. When the feature switch is off the input is
// returned unchanged with empty entities and counts, which is
// distinguishable from a scan that found nothing only by the caller knowing
// the switch state; the bypass is logged for that reason.
func (r *Redactor) Redact(ctx context.Context, text string) (Result, error) {
	// The size ceiling holds whether or not redaction is enabled.
	if len(text) > MaxInputLen {
		return Result{}, types.ErrInputTooLarge
	}
	if !r.Enabled {
		r.Log.WithComponent("redact").Info("redaction_bypass")
		return Result{RedactedText: text, Entities: []Entity{}, CountsByType: map[string]int{}}, nil
	}

	res, err := Regex(text)
	if err != nil {
		return Result{}, err
	}

	if r.Enrich != nil {
		if enriched, ok := r.Enrich.merge(ctx, text, res); ok {
			return enriched, nil
		}
		// Enrichment failures fall back to regex-only silently.
	}
	return res, nil
}

// RedactSynthetic runs the cascade over a pre-authored template for the
// given vertical, for zero-risk demo output.
func (r *Redactor) RedactSynthetic(ctx context.Context, vertical string) (Result, error) {
	res, err := Regex(SyntheticTemplate(vertical))
	if err != nil {
		return Result{}, err
	}
	res.Synthetic = true
	return res, nil
}

// Regex applies the rule cascade: each rule scans the current (possibly
// already partially redacted) text for non-overlapping matches, records the
// span at its position in that intermediate text, splices in the rule's
// placeholder, and resumes scanning just past it.
func Regex(text string) (Result, error) {
	if len(text) > MaxInputLen {
		return Result{}, types.ErrInputTooLarge
	}

	redacted := text
	entities := []Entity{}
	counts := map[string]int{}
	ops := 0

	for _, rl := range rules {
		redacted = applyRule(redacted, rl, &entities, counts, &ops)
		if ops >= maxScanOps {
			break
		}
	}

	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })

	return Result{RedactedText: redacted, Entities: entities, CountsByType: counts}, nil
}

func applyRule(text string, rl rule, entities *[]Entity, counts map[string]int, ops *int) string {
	from := 0
	for from <= len(text) {
		if *ops >= maxScanOps {
			return text
		}
		*ops++

		loc := rl.re.FindStringIndex(text[from:])
		if loc == nil {
			return text
		}
		start, end := from+loc[0], from+loc[1]

		// Zero-length matches must advance the cursor or we loop forever.
		if start == end {
			from = start + 1
			continue
		}

		*entities = append(*entities, Entity{Type: rl.name, Start: start, End: end})
		counts[rl.name]++

		var b strings.Builder
		b.Grow(len(text) - (end - start) + len(rl.placeholder))
		b.WriteString(text[:start])
		b.WriteString(rl.placeholder)
		b.WriteString(text[end:])
		text = b.String()

		from = start + len(rl.placeholder)
	}
	return text
}

// CheckPatternSafety runs the cascade against adversarial inputs and reports
// anything suspicious. Used by tests.
func CheckPatternSafety() []string {
	var issues []string

	garbage := strings.Repeat("a", 10000) + strings.Repeat("b", 10000)
	if res, err := Regex(garbage); err != nil {
		issues = append(issues, "garbage input: "+err.Error())
	} else if len(res.Entities) > 0 {
		issues = append(issues, "patterns matched in garbage string")
	}

	nested := strings.Repeat("a@b.co a@b.co a@b.co ", 1000)
	if _, err := Regex(nested); err != nil {
		issues = append(issues, "nested input: "+err.Error())
	}

	return issues
}
