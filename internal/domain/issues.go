package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// IssuesHeading — первая строка сводки в формате "Unique Issues".
	IssuesHeading = "Unique Issues"
	// NoIssuesText — сводка без обнаруженных проблем.
	NoIssuesText = IssuesHeading + "\n- No issues detected."
	// LastSeenLayout — формат времени последнего упоминания в тексте сводки.
	LastSeenLayout = "Jan 02, 2006 03:04 PM"
	// MaxIssueSamples — максимум примеров сообщений на категорию.
	MaxIssueSamples = 3
)

var occurrencesRe = regexp.MustCompile(`Occurrences:\s*(\d+)`)

// ParseIssueTime разбирает ISO-время из журнала или ответа модели.
func ParseIssueTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	raw = strings.Replace(raw, "Z", "+00:00", 1)
	for _, layout := range []string{"2006-01-02T15:04:05.999999999-07:00", "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", LastSeenLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortIssues упорядочивает категории: больше упоминаний — выше, при равенстве свежие выше.
func SortIssues(items []Issue) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Occurrences != items[j].Occurrences {
			return items[i].Occurrences > items[j].Occurrences
		}
		ti, okI := ParseIssueTime(items[i].LastSeen)
		tj, okJ := ParseIssueTime(items[j].LastSeen)
		if okI && okJ {
			return ti.After(tj)
		}
		return items[i].LastSeen > items[j].LastSeen
	})
}

// FormatIssues сериализует категории в текст "Unique Issues".
func FormatIssues(items []Issue) string {
	if len(items) == 0 {
		return NoIssuesText
	}
	lines := []string{IssuesHeading}
	for _, it := range items {
		lastSeen := "Unknown"
		if t, ok := ParseIssueTime(it.LastSeen); ok {
			lastSeen = t.Format(LastSeenLayout)
		} else if strings.TrimSpace(it.LastSeen) != "" {
			lastSeen = strings.TrimSpace(it.LastSeen)
		}
		lines = append(lines,
			"- Category: "+it.Category,
			"  - Occurrences: "+strconv.Itoa(it.Occurrences),
			"  - Last Occurrence: "+lastSeen,
		)
		samples := it.Samples
		if len(samples) > MaxIssueSamples {
			samples = samples[:MaxIssueSamples]
		}
		if len(samples) > 0 {
			lines = append(lines, "  - Sample Messages:")
			for _, s := range samples {
				lines = append(lines, "    • "+s)
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseIssues восстанавливает категории из текста "Unique Issues".
// Для текста в другом формате возвращает пустой срез.
func ParseIssues(text string) []Issue {
	var (
		items     []Issue
		cur       *Issue
		inSamples bool
	)
	flush := func() {
		if cur != nil {
			items = append(items, *cur)
		}
	}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "- Category:"):
			flush()
			cur = &Issue{Category: strings.TrimSpace(strings.SplitN(line, ":", 2)[1])}
			inSamples = false
		case cur == nil:
			continue
		case strings.Contains(line, "Occurrences:"):
			if m := occurrencesRe.FindStringSubmatch(line); m != nil {
				cur.Occurrences, _ = strconv.Atoi(m[1])
			}
			inSamples = false
		case strings.Contains(line, "Last Occurrence:"):
			cur.LastSeen = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			inSamples = false
		case strings.Contains(line, "Sample Messages:"):
			inSamples = true
		case inSamples && strings.HasPrefix(line, "•"):
			if sample := strings.TrimSpace(strings.TrimPrefix(line, "•")); sample != "" {
				cur.Samples = append(cur.Samples, sample)
			}
		}
	}
	flush()
	return items
}
