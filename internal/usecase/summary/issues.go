package summary

import (
	"encoding/json"
	"strings"
	"time"

	"grouplog-digest/internal/domain"
)

// rawIssue допускает числа строкой и поле issue вместо category.
type rawIssue struct {
	Category    string          `json:"category"`
	Issue       string          `json:"issue"`
	Occurrences json.Number     `json:"occurrences"`
	LastSeen    string          `json:"last_seen"`
	Samples     json.RawMessage `json:"samples"`
}

func (r rawIssue) toIssue() (domain.Issue, bool) {
	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = strings.TrimSpace(r.Issue)
	}
	if category == "" {
		return domain.Issue{}, false
	}
	occ, err := r.Occurrences.Int64()
	if err != nil {
		if f, ferr := r.Occurrences.Float64(); ferr == nil {
			occ = int64(f)
		}
	}
	if occ < 0 {
		occ = 0
	}
	var samples []string
	if len(r.Samples) > 0 {
		_ = json.Unmarshal(r.Samples, &samples)
	}
	return domain.Issue{
		Category:    category,
		Occurrences: int(occ),
		LastSeen:    strings.TrimSpace(r.LastSeen),
		Samples:     samples,
	}, true
}

// extractJSONArray разбирает массив категорий из ответа модели, допуская обёртку в ``` и текст вокруг.
func extractJSONArray(text string) []domain.Issue {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.Trim(s, "`")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	var raw []rawIssue
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	out := make([]domain.Issue, 0, len(raw))
	for _, r := range raw {
		if it, ok := r.toIssue(); ok {
			out = append(out, it)
		}
	}
	return out
}

// aggregator сводит категории из разных кусков журнала по имени без учёта регистра.
type aggregator struct {
	order []string
	items map[string]*domain.Issue
	seen  map[string]time.Time
}

func newAggregator() *aggregator {
	return &aggregator{items: make(map[string]*domain.Issue), seen: make(map[string]time.Time)}
}

func (a *aggregator) add(it domain.Issue) {
	key := strings.ToLower(it.Category)
	cur, ok := a.items[key]
	if !ok {
		cur = &domain.Issue{Category: it.Category}
		a.items[key] = cur
		a.order = append(a.order, key)
	}
	cur.Occurrences += it.Occurrences
	for _, s := range it.Samples {
		s = strings.TrimSpace(s)
		if s != "" && !contains(cur.Samples, s) {
			cur.Samples = append(cur.Samples, s)
		}
	}
	if len(cur.Samples) > domain.MaxIssueSamples {
		cur.Samples = cur.Samples[len(cur.Samples)-domain.MaxIssueSamples:]
	}
	if t, ok := domain.ParseIssueTime(it.LastSeen); ok {
		if prev, had := a.seen[key]; !had || t.After(prev) {
			a.seen[key] = t
			cur.LastSeen = t.Format(time.RFC3339Nano)
		}
	}
}

func (a *aggregator) list() []domain.Issue {
	out := make([]domain.Issue, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.items[key])
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
