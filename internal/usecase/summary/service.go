package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

const (
	// EmptyContentText — текст сводки для пустого журнала.
	EmptyContentText = "No content found in the log file."

	defaultChunkChars = 15000
	minChunkTail      = 1000
)

// Service строит сводку "Unique Issues" по сегментам журнала.
type Service struct {
	reader     domain.SegmentReader
	engine     domain.SummaryEngine
	store      domain.SummaryStore
	chunkChars int
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис суммаризации.
func NewService(reader domain.SegmentReader, engine domain.SummaryEngine, store domain.SummaryStore, chunkChars int, logger zerolog.Logger) *Service {
	if chunkChars <= 0 {
		chunkChars = defaultChunkChars
	}
	return &Service{
		reader:     reader,
		engine:     engine,
		store:      store,
		chunkChars: chunkChars,
		log:        logger,
		now:        time.Now,
	}
}

// Summarize склеивает сегменты в заданном порядке, извлекает категории обращений
// и сохраняет сводку, заменяя предыдущую сводку группы.
func (s *Service) Summarize(ctx context.Context, group domain.TargetGroup, segments []domain.LogSegment, model string) (domain.SummaryArtifact, error) {
	fail := func(err error) (domain.SummaryArtifact, error) {
		return domain.SummaryArtifact{}, &domain.SummarizeError{Group: group.DisplayName, Permanent: domain.IsPermanent(err), Err: err}
	}

	var content bytes.Buffer
	for _, seg := range segments {
		data, err := s.reader.ReadSnapshot(ctx, seg)
		if err != nil {
			return fail(domain.MarkPermanent(fmt.Errorf("read %s: %w", seg.Filename(), err)))
		}
		content.Write(data)
		if n := content.Len(); n > 0 && content.Bytes()[n-1] != '\n' {
			content.WriteByte('\n')
		}
	}

	text, err := s.summarizeText(ctx, group, model, content.String())
	if err != nil {
		return fail(err)
	}

	artifact := domain.SummaryArtifact{
		Group:          group,
		SourceSegments: segments,
		GeneratedAt:    s.now(),
		Model:          model,
		Text:           text,
	}
	path, err := s.store.Save(ctx, artifact)
	if err != nil {
		return fail(fmt.Errorf("save summary: %w", err))
	}
	artifact.Path = path
	s.log.Info().Str("group", group.Slug).Str("path", path).Int("segments", len(segments)).Msg("summary: сводка сохранена")
	return artifact, nil
}

// LoadArtifact повторно использует сохранённую сводку без обращения к модели.
func (s *Service) LoadArtifact(ctx context.Context, path string, groups []domain.TargetGroup) (domain.SummaryArtifact, error) {
	a, err := s.store.Load(ctx, path, groups)
	if err != nil {
		group := domain.GroupForSlug(groups, domain.SlugFromFilename(path))
		return domain.SummaryArtifact{}, &domain.SummarizeError{Group: group.DisplayName, Permanent: true, Err: err}
	}
	return a, nil
}

func (s *Service) summarizeText(ctx context.Context, group domain.TargetGroup, model, content string) (string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if strings.TrimSpace(content) == "" {
		return EmptyContentText, nil
	}

	chunks := chunkText(content, s.chunkChars)
	agg := newAggregator()
	for i, chunk := range chunks {
		s.log.Debug().Str("group", group.Slug).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("summary: извлечение категорий")
		out, err := s.engine.Complete(ctx, model, chunkIssuesSystemPrompt, chunkUserPrompt(chunk))
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		for _, it := range extractJSONArray(out) {
			agg.add(it)
		}
	}

	items := agg.list()
	if len(items) == 0 {
		return domain.NoIssuesText, nil
	}
	items = s.consolidate(ctx, group, model, items)
	domain.SortIssues(items)
	return domain.FormatIssues(items), nil
}

// consolidate объединяет близкие категории. При ошибке остаётся исходный список.
func (s *Service) consolidate(ctx context.Context, group domain.TargetGroup, model string, items []domain.Issue) []domain.Issue {
	payload, err := json.Marshal(items)
	if err != nil {
		return items
	}
	out, err := s.engine.Complete(ctx, model, consolidateSystemPrompt, string(payload))
	if err != nil {
		s.log.Warn().Err(err).Str("group", group.Slug).Msg("summary: объединение категорий не удалось")
		return items
	}
	merged := extractJSONArray(out)
	if len(merged) == 0 {
		return items
	}
	for i := range merged {
		if len(merged[i].Samples) > domain.MaxIssueSamples {
			merged[i].Samples = merged[i].Samples[:domain.MaxIssueSamples]
		}
	}
	return merged
}

// chunkText режет текст на куски не длиннее size рун. Разрез переносится на границу строки,
// если в куске остаётся больше minChunkTail рун.
func chunkText(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			for i := end - 1; i > start+minChunkTail; i-- {
				if runes[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end
	}
	return chunks
}
