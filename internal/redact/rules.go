package redact

import "regexp"

// rule is one named pattern in the cascade. Rules run in order, each against
// the text as the previous rules left it. Go's RE2 engine cannot express the
// original lookaround guards (sentence-start exclusion on bare names, digit
// boundaries on phones); word boundaries stand in for them.
type rule struct {
	name        string
	re          *regexp.Regexp
	placeholder string
}

var rules = []rule{
	{"EMAIL", regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), "[EMAIL]"},
	{"PHONE", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},
	{"URL", regexp.MustCompile(`(?i)https?://[^\s]+|www\.[^\s]+`), "[LINK]"},
	{"IP", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{"DATE", regexp.MustCompile(`(?i)\b(?:\d{1,2}[/-]){2}\d{2,4}\b|\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{2,4}\b`), "[DATE]"},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[ID]"},
	{"POLICY_MRN", regexp.MustCompile(`\b(?i:mrn|chart|medical record|policy|claim|acct|account)\s*[:#]?\s*[A-Z0-9-]{6,20}\b`), "[ID]"},
	{"NAME_CUE", regexp.MustCompile(`\b(?:Patient|Client|Dr\.|Attorney|Nurse|Judge)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`), "[NAME]"},
	{"NAME_CAPITALIZED", regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`), "[NAME]"},
	{"ORG", regexp.MustCompile(`\b(?:Hospital|Clinic|LLP|LLC|Inc\.|University|Court of|Department of)\s+[A-Z][^\n,]+`), "[ORG]"},
}

// MaxInputLen is the redaction input ceiling in characters.
const MaxInputLen = 50000

// maxScanOps bounds the total number of pattern scans across all rules for
// one input, so a pathological input cannot stall a request.
const maxScanOps = 100000
