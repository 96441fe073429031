package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DateLayout — формат даты в именах сегментов.
const DateLayout = "2006-01-02"

const (
	segmentInfix  = "-messages-"
	summarySuffix = "-summary.txt"
)

var segmentNameRe = regexp.MustCompile(`^(.+)-messages-(\d{4}-\d{2}-\d{2})\.txt$`)

// Slug нормализует отображаемое имя группы для имён файлов.
// Дефисы и подчёркивания считаются разделителями слов, прочие символы вне [a-z0-9]
// отбрасываются, серии пробелов схлопываются в один дефис.
func Slug(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "-")
}

// SegmentFilename строит имя сегмента {slug}-messages-{YYYY-MM-DD}.txt.
func SegmentFilename(slug string, date time.Time) string {
	return slug + segmentInfix + date.Format(DateLayout) + ".txt"
}

// ParseSegmentFilename разбирает имя сегмента. Каталог в имени недопустим.
func ParseSegmentFilename(name string) (slug string, date time.Time, ok bool) {
	if name != filepath.Base(name) {
		return "", time.Time{}, false
	}
	m := segmentNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	date, err := time.Parse(DateLayout, m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], date, true
}

// SummaryFilename строит имя файла сводки {slug}-summary.txt.
func SummaryFilename(slug string) string {
	return slug + summarySuffix
}

// IsSummaryFilename сообщает, похож ли путь на сохранённую сводку.
// Поддерживается и старый формат *.summary*.txt.
func IsSummaryFilename(path string) bool {
	name := filepath.Base(path)
	if strings.HasSuffix(name, summarySuffix) {
		return true
	}
	return strings.Contains(name, ".summary") && strings.HasSuffix(name, ".txt")
}

// SlugFromFilename выделяет slug из имени сегмента или сводки.
// Для произвольных имён возвращается базовое имя без расширения.
func SlugFromFilename(path string) string {
	name := filepath.Base(path)
	if idx := strings.Index(name, segmentInfix); idx > 0 {
		return name[:idx]
	}
	if strings.HasSuffix(name, summarySuffix) {
		return strings.TrimSuffix(name, summarySuffix)
	}
	if idx := strings.Index(name, ".summary"); idx > 0 {
		return name[:idx]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// GroupForSlug ищет настроенную группу по slug. При отсутствии возвращает группу,
// где отображаемое имя совпадает со slug.
func GroupForSlug(groups []TargetGroup, slug string) TargetGroup {
	for _, g := range groups {
		if g.Slug == slug {
			return g
		}
	}
	return TargetGroup{DisplayName: slug, Slug: slug}
}
