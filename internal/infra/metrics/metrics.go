package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
)

var (
	IngestEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_events_total",
		Help: "Количество событий чат-транспорта по типу",
	}, []string{"kind"})

	IngestMatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_matched_messages_total",
		Help: "Сообщения, совпавшие с целевыми группами",
	}, []string{"group"})

	TransportReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_transport_ready",
		Help: "1, если чат-транспорт готов принимать сообщения",
	})

	SegmentAppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_appends_total",
		Help: "Дозаписи в сегменты журнала",
	}, []string{"status"})

	SegmentAppendSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "segment_append_seconds",
		Help:    "Длительность дозаписи строки с fsync",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180, 300},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})

	PipelineGroupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_group_outcomes_total",
		Help: "Итоговые состояния групп в пакетных запусках",
	}, []string{"state"})

	PipelineRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_seconds",
		Help:    "Длительность пакетного запуска",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		IngestEventsTotal,
		IngestMatchedTotal,
		TransportReady,
		SegmentAppendsTotal,
		SegmentAppendSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
		PipelineGroupsTotal,
		PipelineRunSeconds,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics и дополнительными обработчиками.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string, extra map[string]http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// Push отправляет метрики короткоживущего процесса в Pushgateway.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(gatherer).PushContext(ctx)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveAppend записывает результат дозаписи в сегмент.
func ObserveAppend(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SegmentAppendsTotal.WithLabelValues(status).Inc()
	SegmentAppendSeconds.Observe(time.Since(start).Seconds())
}

// IncIngestEvent увеличивает счётчик событий приёма.
func IncIngestEvent(kind string) {
	IngestEventsTotal.WithLabelValues(kind).Inc()
}

// IncMatched увеличивает счётчик совпавших сообщений группы.
func IncMatched(slug string) {
	IngestMatchedTotal.WithLabelValues(slug).Inc()
}

// SetTransportReady выставляет признак готовности транспорта.
func SetTransportReady(ready bool) {
	if ready {
		TransportReady.Set(1)
		return
	}
	TransportReady.Set(0)
}

// ObserveGroupOutcome учитывает итоговое состояние группы.
func ObserveGroupOutcome(state string) {
	PipelineGroupsTotal.WithLabelValues(state).Inc()
}
