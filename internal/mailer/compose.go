package mailer

import (
	"fmt"
	"html"
	"strings"

	"voicenotes-go/internal/summarize"
)

// ComposeSummaryEmail renders the summary into paired HTML and plain-text
// bodies. The trace id goes into a footer so support can correlate a
// forwarded email with server logs.
func ComposeSummaryEmail(out summarize.Output, traceID string) (subject, htmlBody, textBody string) {
	subject = out.Title
	if subject == "" {
		subject = "Your voice note summary"
	}

	var hb strings.Builder
	hb.WriteString("<h2>" + html.EscapeString(subject) + "</h2>")
	hb.WriteString("<p>" + html.EscapeString(out.Summary) + "</p>")
	writeHTMLList(&hb, "Highlights", out.Bullets)
	writeHTMLList(&hb, "Action items", out.ActionItems)
	if len(out.Tags) > 0 {
		hb.WriteString("<p><em>" + html.EscapeString(strings.Join(out.Tags, ", ")) + "</em></p>")
	}
	hb.WriteString(fmt.Sprintf(`<p style="color:#999;font-size:12px">ref %s</p>`, html.EscapeString(traceID)))

	var tb strings.Builder
	tb.WriteString(subject + "\n\n" + out.Summary + "\n")
	writeTextList(&tb, "Highlights", out.Bullets)
	writeTextList(&tb, "Action items", out.ActionItems)
	if len(out.Tags) > 0 {
		tb.WriteString("\nTags: " + strings.Join(out.Tags, ", ") + "\n")
	}
	tb.WriteString("\nref " + traceID + "\n")

	return subject, hb.String(), tb.String()
}

func writeHTMLList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("<h3>" + heading + "</h3><ul>")
	for _, item := range items {
		b.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	b.WriteString("</ul>")
}

func writeTextList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + heading + ":\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
}
