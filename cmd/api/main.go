package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"grouplog-digest/internal/adapters/segments"
	"grouplog-digest/internal/infra/config"
	httpinfra "grouplog-digest/internal/infra/http"
	applog "grouplog-digest/internal/infra/log"
	"grouplog-digest/internal/infra/metrics"
	"grouplog-digest/internal/usecase/groups"
	"grouplog-digest/internal/usecase/logs"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names, err := config.LoadGroups(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось загрузить список групп")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректный часовой пояс")
	}

	targets := groups.NewMatcher(names).Groups()
	for slug, clash := range groups.DetectCollisions(targets) {
		logger.Warn().Str("slug", slug).Strs("groups", clash).Msg("api: группы пишут в один файл журнала")
	}
	store := segments.NewStore(cfg.Logs.Dir, loc, applog.Component(logger, "segments"))
	logsService := logs.NewService(store, targets, applog.Component(logger, "logs"))

	srv := httpinfra.NewServer(applog.Component(logger, "api"))
	srv.Router.Group(func(r chi.Router) {
		r.Use(httpinfra.TokenAuthMiddleware(cfg.APIToken))
		httpinfra.MountLogs(r, logsService, applog.Component(logger, "api"))
	})
	if cfg.APIToken == "" {
		logger.Warn().Msg("api: API_TOKEN не задан, маршруты журналов открыты без авторизации")
	}

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
