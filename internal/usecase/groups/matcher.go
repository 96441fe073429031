package groups

import (
	"sort"
	"strings"

	"grouplog-digest/internal/domain"
)

// Matcher сопоставляет название чата с неизменяемым набором целевых групп.
type Matcher struct {
	groups []domain.TargetGroup
	byName map[string]domain.TargetGroup
}

// NewMatcher строит матчер по отображаемым именам. Пустые имена пропускаются,
// при повторе имени (без учёта регистра и пробелов по краям) побеждает первое.
func NewMatcher(names []string) *Matcher {
	m := &Matcher{byName: make(map[string]domain.TargetGroup, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		key := normalize(name)
		if _, dup := m.byName[key]; dup {
			continue
		}
		g := domain.NewTargetGroup(name)
		m.byName[key] = g
		m.groups = append(m.groups, g)
	}
	return m
}

// Groups возвращает настроенные группы в порядке конфигурации.
func (m *Matcher) Groups() []domain.TargetGroup {
	out := make([]domain.TargetGroup, len(m.groups))
	copy(out, m.groups)
	return out
}

// Names возвращает отображаемые имена настроенных групп.
func (m *Matcher) Names() []string {
	names := make([]string, len(m.groups))
	for i, g := range m.groups {
		names[i] = g.DisplayName
	}
	return names
}

// Match возвращает группу для сообщения. Личные чаты никогда не совпадают,
// сравнение точное без учёта регистра и пробелов по краям.
func (m *Matcher) Match(chatName string, isGroup bool) (domain.TargetGroup, bool) {
	if !isGroup {
		return domain.TargetGroup{}, false
	}
	key := normalize(chatName)
	if key == "" {
		return domain.TargetGroup{}, false
	}
	g, ok := m.byName[key]
	return g, ok
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DetectCollisions возвращает slug, которые получаются из нескольких разных имён.
// Логи таких групп попадают в один файл.
func DetectCollisions(groups []domain.TargetGroup) map[string][]string {
	bySlug := make(map[string][]string)
	for _, g := range groups {
		bySlug[g.Slug] = append(bySlug[g.Slug], g.DisplayName)
	}
	out := make(map[string][]string)
	for slug, names := range bySlug {
		if len(names) > 1 {
			sort.Strings(names)
			out[slug] = names
		}
	}
	return out
}
