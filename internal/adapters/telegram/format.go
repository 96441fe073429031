package telegram

import (
	"fmt"
	"html"
	"strings"

	"grouplog-digest/internal/domain"
)

// FormatSummary формирует HTML-представление сводки для Bot API.
func FormatSummary(a domain.SummaryArtifact) string {
	var b strings.Builder
	b.WriteString("📋 <b>" + html.EscapeString(a.Group.DisplayName) + "</b>\n")

	var meta []string
	if from, to, ok := a.TimeRange(); ok {
		period := from.Format(domain.DateLayout)
		if !to.Equal(from) {
			period += " to " + to.Format(domain.DateLayout)
		}
		meta = append(meta, period)
	}
	if a.Model != "" {
		meta = append(meta, html.EscapeString(a.Model))
	}
	if len(meta) > 0 {
		b.WriteString("<i>" + strings.Join(meta, " · ") + "</i>\n")
	}
	b.WriteString("\n")

	items := domain.ParseIssues(a.Text)
	if len(items) == 0 {
		b.WriteString(html.EscapeString(strings.TrimSpace(a.Text)))
		return strings.TrimSpace(b.String())
	}
	domain.SortIssues(items)
	for _, it := range items {
		fmt.Fprintf(&b, "%s <b>%s</b> (%d)\n", severityMark(it.Occurrences), html.EscapeString(it.Category), it.Occurrences)
		if t, ok := domain.ParseIssueTime(it.LastSeen); ok {
			b.WriteString("Last: " + t.Format(domain.LastSeenLayout) + "\n")
		}
		samples := it.Samples
		if len(samples) > domain.MaxIssueSamples {
			samples = samples[:domain.MaxIssueSamples]
		}
		for _, s := range samples {
			b.WriteString("• " + html.EscapeString(s) + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func severityMark(occurrences int) string {
	switch {
	case occurrences >= 10:
		return "🔴"
	case occurrences >= 3:
		return "🟠"
	default:
		return "🔵"
	}
}
