package logs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

// Status — список групп и их файлов журнала.
type Status struct {
	Groups []domain.TargetGroup
	// Files сгруппированы по slug, свежие по времени изменения первыми.
	Files map[string][]domain.SegmentStat
}

// Content — содержимое одного файла журнала.
type Content struct {
	Filename  string
	Text      string
	LineCount int
}

// Service обслуживает запросы просмотра журналов.
type Service struct {
	catalog domain.LogCatalog
	groups  []domain.TargetGroup
	log     zerolog.Logger
}

// NewService создаёт сервис просмотра журналов для настроенных групп.
func NewService(catalog domain.LogCatalog, groups []domain.TargetGroup, logger zerolog.Logger) *Service {
	return &Service{catalog: catalog, groups: groups, log: logger}
}

// Status перечисляет файлы журнала всех настроенных групп.
func (s *Service) Status(ctx context.Context) (Status, error) {
	stats, err := s.catalog.Status(ctx, s.groups)
	if err != nil {
		return Status{}, fmt.Errorf("logs status: %w", err)
	}
	out := Status{Groups: s.groups, Files: make(map[string][]domain.SegmentStat, len(s.groups))}
	for _, g := range s.groups {
		out.Files[g.Slug] = []domain.SegmentStat{}
	}
	for _, st := range stats {
		out.Files[st.Group.Slug] = append(out.Files[st.Group.Slug], st)
	}
	return out, nil
}

// Content возвращает файл журнала по имени. Имя проверяется до обращения к диску:
// оно должно соответствовать соглашению об именах и принадлежать настроенной группе.
func (s *Service) Content(ctx context.Context, filename string) (Content, error) {
	slug, _, ok := domain.ParseSegmentFilename(filename)
	if !ok || !s.known(slug) {
		s.log.Warn().Str("filename", filename).Msg("logs: отклонено недопустимое имя файла")
		return Content{}, domain.ErrInvalidName
	}
	data, err := s.catalog.ReadNamed(ctx, filename)
	if err != nil {
		return Content{}, err
	}
	return Content{Filename: filename, Text: string(data), LineCount: domain.CountLines(data)}, nil
}

func (s *Service) known(slug string) bool {
	for _, g := range s.groups {
		if g.Slug == slug {
			return true
		}
	}
	return false
}
