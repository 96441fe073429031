package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"grouplog-digest/internal/adapters/dedup"
	"grouplog-digest/internal/adapters/repo"
	"grouplog-digest/internal/adapters/segments"
	"grouplog-digest/internal/adapters/slack"
	"grouplog-digest/internal/adapters/summaries"
	"grouplog-digest/internal/adapters/summarizer"
	"grouplog-digest/internal/adapters/telegram"
	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/cache"
	"grouplog-digest/internal/infra/config"
	"grouplog-digest/internal/infra/db"
	"grouplog-digest/internal/infra/httpclient"
	applog "grouplog-digest/internal/infra/log"
	"grouplog-digest/internal/infra/metrics"
	"grouplog-digest/internal/infra/openai"
	"grouplog-digest/internal/infra/retry"
	"grouplog-digest/internal/usecase/groups"
	"grouplog-digest/internal/usecase/pipeline"
	"grouplog-digest/internal/usecase/summary"
)

type flags struct {
	post        bool
	channel     string
	model       string
	logDir      string
	summaryDir  string
	insecure    bool
	caBundle    string
	concurrency int
	changed     func(name string) bool
}

// apply переносит флаги поверх конфигурации из окружения.
func (f flags) apply(cfg *config.AppConfig) {
	if f.model != "" {
		cfg.OpenAI.Model = f.model
	}
	if f.logDir != "" {
		cfg.Logs.Dir = f.logDir
	}
	if f.summaryDir != "" {
		cfg.Summaries.Dir = f.summaryDir
	}
	if f.changed != nil && f.changed("insecure") {
		cfg.OpenAI.InsecureSkipVerify = f.insecure
	}
	if f.caBundle != "" {
		cfg.OpenAI.CABundle = f.caBundle
	}
	if f.concurrency > 0 {
		cfg.Run.Concurrency = f.concurrency
	}
}

func run(parent context.Context, out io.Writer, f flags, args []string) error {
	cfg := config.Load()
	f.apply(&cfg)
	logger := applog.NewLogger(cfg.AppEnv)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	names, err := config.LoadGroups(cfg)
	if err != nil {
		return fatal("summarize: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return fatal("summarize: %w", err)
	}
	targets := groups.NewMatcher(names).Groups()
	for slug, clash := range groups.DetectCollisions(targets) {
		logger.Warn().Str("slug", slug).Strs("groups", clash).Msg("summarize: группы пишут в один файл журнала")
	}

	ctx, cancel := context.WithTimeout(parent, cfg.Run.Timeout)
	defer cancel()

	httpClient, err := httpclient.New(httpclient.Options{
		Insecure: cfg.OpenAI.InsecureSkipVerify,
		CABundle: cfg.OpenAI.CABundle,
		Timeout:  cfg.OpenAI.Timeout,
	})
	if err != nil {
		return fatal("summarize: %w", err)
	}

	store := segments.NewStore(cfg.Logs.Dir, loc, applog.Component(logger, "segments"))
	engine := summarizer.NewOpenAI(
		openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, httpClient),
		retry.Policy{MaxAttempts: cfg.OpenAI.MaxAttempts, BaseDelay: cfg.OpenAI.BackoffBase, MaxDelay: cfg.OpenAI.BackoffMax},
		cfg.OpenAI.Timeout,
		applog.Component(logger, "openai"),
	)
	svc := summary.NewService(store, engine, summaries.NewStore(cfg.Summaries.Dir), cfg.Summaries.ChunkChars, applog.Component(logger, "summary"))

	var (
		publisher domain.Publisher
		records   domain.NotificationRecordRepo
		channel   string
	)
	if f.post {
		publisher, channel, err = buildPublisher(ctx, cfg, f, httpClient, logger)
		if err != nil {
			return fatal("summarize: %w", err)
		}
		if cfg.PGDSN != "" {
			pool, err := db.Connect(ctx, cfg.PGDSN)
			if err != nil {
				return fatal("summarize: нет подключения к БД: %w", err)
			}
			defer pool.Close()
			pg := repo.NewPostgres(pool)
			if err := pg.EnsureSchema(ctx); err != nil {
				return fatal("summarize: схема БД: %w", err)
			}
			records = pg
		}
	}

	orch := pipeline.New(targets, store, svc, publisher, records, pipeline.Options{
		Model:           cfg.OpenAI.Model,
		Channel:         channel,
		Post:            f.post,
		Concurrency:     cfg.Run.Concurrency,
		SummarizerCalls: cfg.Run.SummarizerCalls,
		PublisherCalls:  cfg.Run.PublisherCalls,
	}, applog.Component(logger, "pipeline"))

	var report pipeline.RunReport
	if len(args) == 0 {
		report, err = orch.RunDiscovery(ctx)
	} else {
		report, err = orch.RunExplicit(ctx, args)
	}
	pushMetrics(parent, cfg.PushgatewayURL, registry, logger)
	if err != nil {
		return fatal("summarize: %w", err)
	}

	printReport(out, report)
	if report.Failed() {
		return &exitError{code: exitGroupFailed, err: fmt.Errorf("summarize: %d из %d групп завершились ошибкой", report.FailedCount(), len(report.Groups))}
	}
	return nil
}

// buildPublisher выбирает канал уведомлений по NOTIFY_BACKEND и при наличии Redis
// добавляет защиту от повторной публикации.
func buildPublisher(ctx context.Context, cfg config.AppConfig, f flags, httpClient *http.Client, logger zerolog.Logger) (domain.Publisher, string, error) {
	policy := retry.Policy{MaxAttempts: cfg.Notify.MaxAttempts, BaseDelay: cfg.Notify.BackoffBase, MaxDelay: cfg.Notify.BackoffMax}

	var (
		pub     domain.Publisher
		channel string
	)
	switch strings.ToLower(cfg.Notify.Backend) {
	case "slack", "":
		client := *httpClient
		client.Timeout = cfg.Slack.Timeout
		pub = slack.NewPublisher(&client, cfg.Slack.Token, cfg.Slack.APIBase, policy, applog.Component(logger, "slack"))
		channel = cfg.Slack.Channel
	case "telegram":
		if cfg.Telegram.Token == "" {
			return nil, "", fmt.Errorf("не указан токен Telegram (TG_BOT_TOKEN)")
		}
		telegram.InstallLogger(applog.Component(logger, "telegram"))
		bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, httpClient)
		if err != nil {
			return nil, "", fmt.Errorf("telegram: %w", telegram.ScrubError(err))
		}
		pub = telegram.NewPublisher(bot, policy, applog.Component(logger, "telegram"))
		channel = cfg.Telegram.ChatID
	default:
		return nil, "", fmt.Errorf("неизвестный NOTIFY_BACKEND %q", cfg.Notify.Backend)
	}
	if f.channel != "" {
		channel = f.channel
	}

	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn().Err(err).Msg("summarize: Redis недоступен, публикация без дедупликации")
		} else {
			pub = dedup.New(pub, cache.NewRedis(client), cfg.Dedup.TTL, applog.Component(logger, "dedup"))
		}
	}
	return pub, channel, nil
}

func pushMetrics(ctx context.Context, url string, registry *prometheus.Registry, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, url, "grouplog_summarize", registry); err != nil {
		logger.Warn().Err(err).Msg("summarize: не удалось отправить метрики в Pushgateway")
	}
}

func printReport(out io.Writer, r pipeline.RunReport) {
	fmt.Fprintf(out, "run %s: %d groups, %d failed, %s\n", r.RunID, len(r.Groups), r.FailedCount(), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, g := range r.Groups {
		line := fmt.Sprintf("  %-30s %-17s", g.Group.DisplayName, g.State)
		if len(g.Sources) > 0 {
			line += " " + strings.Join(g.Sources, ", ")
		}
		if g.SummaryPath != "" {
			line += " -> " + g.SummaryPath
		}
		if g.Err != nil {
			line += " error: " + g.Err.Error()
		}
		fmt.Fprintln(out, line)
	}
}
