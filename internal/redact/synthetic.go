package redact

// SyntheticTemplate returns pre-authored text for one of the demo verticals.
// Unknown verticals fall back to health. The cascade still runs over the
// template rather than returning it raw.
func SyntheticTemplate(vertical string) string {
	switch vertical {
	case "legal":
		return `Sample Legal Consultation

Client [NAME] consultation on [DATE] regarding contract review.
Contact information: [EMAIL] and [PHONE].

Matter: Employment agreement terms and conditions review.
Case reference: [ID]

Analysis: Standard clauses present with recommended modifications.
Timeline: Follow up scheduled for [DATE].

Contact: [ORG] legal team for additional support.
This demonstrates legal document redaction capabilities.`
	case "ops":
		return `Sample Operations Report

Team member [NAME] completed training on [DATE].
Contact: [EMAIL] or [PHONE] for coordination.

Task: System maintenance and performance review.
Reference: [ID]

Status: All systems operational. Next review on [DATE].
Action items: Documentation update and team coordination.

Contact: [ORG] operations team for support.
This demonstrates operational document redaction.`
	default:
		return `This is a sample transcript for demonstration purposes.

Patient [NAME] visited the clinic on [DATE] for a routine checkup.
The patient's contact information includes [EMAIL] and [PHONE].
Medical record number [ID] was assigned.

The patient reported feeling well and had no concerns.
Vital signs were normal. The patient was advised to continue
current medications and return in 6 months.

Follow-up appointment scheduled for [DATE].
Contact: [EMAIL] or [PHONE] for any questions.

This sample demonstrates how PII redaction works while preserving
the structure and meaning of medical documentation.`
	}
}
