package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"grouplog-digest/internal/adapters/segments"
	"grouplog-digest/internal/adapters/telegram"
	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/config"
	applog "grouplog-digest/internal/infra/log"
	"grouplog-digest/internal/infra/metrics"
	"grouplog-digest/internal/usecase/groups"
	"grouplog-digest/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names, err := config.LoadGroups(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingestor: не удалось загрузить список групп")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("ingestor: некорректный часовой пояс")
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("ingestor: не указан токен Telegram (TG_BOT_TOKEN)")
	}

	matcher := groups.NewMatcher(names)
	for slug, clash := range groups.DetectCollisions(matcher.Groups()) {
		logger.Warn().Str("slug", slug).Strs("groups", clash).Msg("ingestor: группы пишут в один файл журнала")
	}

	store := segments.NewStore(cfg.Logs.Dir, loc, applog.Component(logger, "segments"))
	dispatcher := ingest.NewDispatcher(matcher, store, applog.Component(logger, "ingest"))

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr, map[string]http.Handler{
		"/healthz": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !dispatcher.Ready() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("transport not ready"))
				return
			}
			_, _ = w.Write([]byte("ok"))
		}),
	})

	events := make(chan domain.IngestEvent, cfg.Ingest.Buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx, events)
	}()

	logger.Info().Str("log_dir", cfg.Logs.Dir).Strs("groups", matcher.Names()).Msg("ingestor: старт")
	telegram.InstallLogger(applog.Component(logger, "telegram"))
	source := telegram.NewSource(cfg.Telegram.Token, cfg.Telegram.PollTimeout, applog.Component(logger, "telegram"))
	runSource(ctx, source, events, logger)
	// Источник остановлен: закрываем канал, диспетчер дописывает буфер и выходит.
	close(events)

	<-done
	logger.Info().Msg("ingestor: остановка")
}

// runSource переподключает транспорт после обрыва. После ошибки авторизации приём
// прекращается, а процесс продолжает отдавать /metrics и /healthz до сигнала остановки.
func runSource(ctx context.Context, source domain.EventSource, events chan<- domain.IngestEvent, logger zerolog.Logger) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := source.Run(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, telegram.ErrAuthRejected) {
			logger.Error().Err(err).Msg("ingestor: транспорт отклонил авторизацию, приём остановлен")
			<-ctx.Done()
			return
		}
		if time.Since(started) > b.MaxInterval {
			b.Reset()
		}
		wait := b.NextBackOff()
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("ingestor: транспорт отключён, переподключение")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
