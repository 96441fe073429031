package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
)

type summarizer interface {
	Summarize(ctx context.Context, group domain.TargetGroup, segments []domain.LogSegment, model string) (domain.SummaryArtifact, error)
	LoadArtifact(ctx context.Context, path string, groups []domain.TargetGroup) (domain.SummaryArtifact, error)
}

// Options задаёт параметры пакетного запуска.
type Options struct {
	Model   string
	Channel string
	// Post включает публикацию. Без неё успешным итогом считается summarized.
	Post bool
	// Concurrency ограничивает число групп, обрабатываемых одновременно.
	Concurrency int
	// SummarizerCalls и PublisherCalls ограничивают параллельные вызовы внешних API.
	SummarizerCalls int
	PublisherCalls  int
}

// Orchestrator проводит группы через обнаружение, суммаризацию и публикацию.
// Ошибка одной группы не влияет на остальные.
type Orchestrator struct {
	groups     []domain.TargetGroup
	index      domain.SegmentIndex
	summarizer summarizer
	publisher  domain.Publisher
	records    domain.NotificationRecordRepo
	opts       Options
	log        zerolog.Logger
	now        func() time.Time

	summarizeSem *semaphore.Weighted
	publishSem   *semaphore.Weighted
}

// New создаёт оркестратор. publisher и records могут быть nil.
func New(groups []domain.TargetGroup, index domain.SegmentIndex, s summarizer, publisher domain.Publisher, records domain.NotificationRecordRepo, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SummarizerCalls <= 0 {
		opts.SummarizerCalls = 1
	}
	if opts.PublisherCalls <= 0 {
		opts.PublisherCalls = 1
	}
	return &Orchestrator{
		groups:       groups,
		index:        index,
		summarizer:   s,
		publisher:    publisher,
		records:      records,
		opts:         opts,
		log:          logger,
		now:          time.Now,
		summarizeSem: semaphore.NewWeighted(int64(opts.SummarizerCalls)),
		publishSem:   semaphore.NewWeighted(int64(opts.PublisherCalls)),
	}
}

type job struct {
	group       domain.TargetGroup
	segments    []domain.LogSegment
	summaryPath string
	err         error
}

// RunDiscovery обрабатывает последний сегмент каждой настроенной группы.
// Ошибка возвращается, только если каталог журналов не удалось прочитать.
func (o *Orchestrator) RunDiscovery(ctx context.Context) (RunReport, error) {
	report := o.newReport()
	latest, err := o.index.DiscoverLatest(ctx, o.groups)
	if err != nil {
		report.FinishedAt = o.now()
		return report, fmt.Errorf("discover segments: %w", err)
	}
	var (
		jobs    []job
		aliases []domain.TargetGroup
	)
	seen := make(map[string]bool, len(o.groups))
	for _, g := range o.groups {
		if seen[g.Slug] {
			aliases = append(aliases, g)
			continue
		}
		seen[g.Slug] = true
		seg, ok := latest[g.Slug]
		if !ok {
			jobs = append(jobs, job{group: g, err: domain.ErrNoSegments})
			continue
		}
		jobs = append(jobs, job{group: g, segments: []domain.LogSegment{seg}})
	}
	report = o.execute(ctx, report, jobs)
	return withAliases(report, aliases, o.log), nil
}

// withAliases добавляет в отчёт группы, чей slug совпал с более ранней группой:
// они делят файл журнала и сводку, поэтому получают итог этой группы.
func withAliases(report RunReport, aliases []domain.TargetGroup, logger zerolog.Logger) RunReport {
	for _, alias := range aliases {
		for _, res := range report.Groups {
			if res.Group.Slug != alias.Slug {
				continue
			}
			logger.Warn().
				Str("group", alias.DisplayName).
				Str("shares_with", res.Group.DisplayName).
				Str("state", string(res.State)).
				Msg("pipeline: группа делит файл журнала с другой группой")
			res.Group = alias
			report.Groups = append(report.Groups, res)
			break
		}
	}
	return report
}

// RunExplicit обрабатывает явно переданные файлы. Сегменты одной группы суммаризуются
// одним вызовом в порядке передачи, файлы сводок публикуются повторно без обращения к модели.
// Если хотя бы один файл группы недоступен, группа завершается ошибкой обнаружения.
func (o *Orchestrator) RunExplicit(ctx context.Context, paths []string) (RunReport, error) {
	report := o.newReport()
	var (
		jobs   []job
		bySlug = make(map[string]int)
	)
	for _, path := range paths {
		if domain.IsSummaryFilename(path) {
			group := domain.GroupForSlug(o.groups, domain.SlugFromFilename(path))
			jobs = append(jobs, job{group: group, summaryPath: path})
			continue
		}
		seg, err := o.index.ResolveExplicit(ctx, path, o.groups)
		if err != nil {
			seg = domain.LogSegment{Group: domain.GroupForSlug(o.groups, domain.SlugFromFilename(path)), Path: path}
		}
		idx, ok := bySlug[seg.Group.Slug]
		if !ok {
			idx = len(jobs)
			bySlug[seg.Group.Slug] = idx
			jobs = append(jobs, job{group: seg.Group})
		}
		if err != nil {
			jobs[idx].err = errors.Join(jobs[idx].err, err)
			continue
		}
		jobs[idx].segments = append(jobs[idx].segments, seg)
	}
	return o.execute(ctx, report, jobs), nil
}

func (o *Orchestrator) newReport() RunReport {
	return RunReport{RunID: uuid.NewString(), StartedAt: o.now()}
}

func (o *Orchestrator) execute(ctx context.Context, report RunReport, jobs []job) RunReport {
	results := make([]GroupResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i := range jobs {
		i := i
		g.Go(func() error {
			results[i] = o.runJob(ctx, report.RunID, jobs[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Groups = results
	report.FinishedAt = o.now()
	metrics.PipelineRunSeconds.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	o.log.Info().
		Str("run_id", report.RunID).
		Int("groups", len(results)).
		Int("failed", report.FailedCount()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("pipeline: запуск завершён")
	return report
}

func (o *Orchestrator) runJob(ctx context.Context, runID string, j job) (res GroupResult) {
	res = GroupResult{Group: j.group, State: StatePending}
	logger := o.log.With().Str("run_id", runID).Str("group", j.group.Slug).Logger()
	defer func() {
		metrics.ObserveGroupOutcome(string(res.State))
		ev := logger.Info()
		if res.State.Failed() {
			ev = logger.Error().Err(res.Err)
		}
		ev.Str("state", string(res.State)).Strs("sources", res.Sources).Msg("pipeline: группа обработана")
	}()

	if j.err != nil {
		res.State, res.Err = StateDiscoveryFailed, j.err
		return res
	}
	res.State = StateDiscovered
	for _, seg := range j.segments {
		res.Sources = append(res.Sources, seg.Filename())
	}

	artifact, err := o.summarize(ctx, j)
	if err != nil {
		res.State, res.Err = StateSummarizeFailed, err
		return res
	}
	res.State = StateSummarized
	res.SummaryPath = artifact.Path
	if len(res.Sources) == 0 {
		res.Sources = artifact.Sources()
	}
	if !o.opts.Post {
		return res
	}

	record, err := o.publish(ctx, artifact)
	if record.Status != "" {
		res.Record = &record
		o.saveRecord(ctx, runID, record, logger)
	}
	if err != nil {
		res.State, res.Err = StatePublishFailed, err
		return res
	}
	res.State = StatePublished
	return res
}

func (o *Orchestrator) summarize(ctx context.Context, j job) (domain.SummaryArtifact, error) {
	if j.summaryPath != "" {
		return o.summarizer.LoadArtifact(ctx, j.summaryPath, o.groups)
	}
	if err := o.summarizeSem.Acquire(ctx, 1); err != nil {
		return domain.SummaryArtifact{}, err
	}
	defer o.summarizeSem.Release(1)
	return o.summarizer.Summarize(ctx, j.group, j.segments, o.opts.Model)
}

func (o *Orchestrator) publish(ctx context.Context, a domain.SummaryArtifact) (domain.NotificationRecord, error) {
	if o.publisher == nil {
		return domain.NotificationRecord{}, domain.MarkPermanent(errors.New("publisher is not configured"))
	}
	if err := o.publishSem.Acquire(ctx, 1); err != nil {
		return domain.NotificationRecord{}, err
	}
	defer o.publishSem.Release(1)
	return o.publisher.Publish(ctx, a, o.opts.Channel)
}

func (o *Orchestrator) saveRecord(ctx context.Context, runID string, record domain.NotificationRecord, logger zerolog.Logger) {
	if o.records == nil {
		return
	}
	if err := o.records.SaveNotification(context.WithoutCancel(ctx), runID, record); err != nil {
		logger.Warn().Err(err).Msg("pipeline: не удалось сохранить запись о публикации")
	}
}
