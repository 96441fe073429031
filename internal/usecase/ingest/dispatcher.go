package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
)

type matcher interface {
	Match(chatName string, isGroup bool) (domain.TargetGroup, bool)
}

// Dispatcher обрабатывает события приёма строго по одному в порядке поступления.
type Dispatcher struct {
	matcher matcher
	writer  domain.SegmentWriter
	log     zerolog.Logger
	now     func() time.Time
	ready   atomic.Bool
}

// NewDispatcher создаёт цикл обработки событий.
func NewDispatcher(m matcher, writer domain.SegmentWriter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{matcher: m, writer: writer, log: logger, now: time.Now}
}

// Ready сообщает, находится ли транспорт в состоянии готовности.
func (d *Dispatcher) Ready() bool { return d.ready.Load() }

// Run читает события до закрытия канала. Канал закрывает источник; после отмены
// контекста буфер всё равно дочитывается, принятые сообщения не теряются.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.IngestEvent) {
	for ev := range events {
		d.Handle(ctx, ev)
	}
}

// Handle обрабатывает одно событие. Ошибки записи логируются и не прерывают приём.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.IngestEvent) {
	metrics.IncIngestEvent(string(ev.Kind))
	switch ev.Kind {
	case domain.EventConnection:
		d.handleConnection(ev)
	case domain.EventMessage:
		d.handleMessage(ctx, ev.Message)
	default:
		d.log.Debug().Str("kind", string(ev.Kind)).Msg("ingest: неизвестное событие")
	}
}

func (d *Dispatcher) handleConnection(ev domain.IngestEvent) {
	ready := ev.State == domain.ConnectionReady
	d.ready.Store(ready)
	metrics.SetTransportReady(ready)
	switch ev.State {
	case domain.ConnectionReady:
		d.log.Info().Msg("ingest: транспорт готов")
	case domain.ConnectionAuthFailed:
		d.log.Error().Str("reason", ev.Reason).Msg("ingest: ошибка авторизации транспорта")
	default:
		d.log.Warn().Str("state", string(ev.State)).Str("reason", ev.Reason).Msg("ingest: транспорт отключён")
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg domain.InboundMessage) {
	group, ok := d.matcher.Match(msg.ChatName, msg.IsGroup)
	if !ok {
		return
	}
	metrics.IncMatched(group.Slug)
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}
	entry := domain.LogEntry{Timestamp: ts, SenderName: msg.SenderName, Body: msg.Body}
	if err := d.writer.Append(context.WithoutCancel(ctx), group, entry); err != nil {
		d.log.Error().Err(err).Str("group", group.Slug).Msg("ingest: не удалось записать сообщение")
		return
	}
	d.log.Debug().Str("group", group.Slug).Msg("ingest: сообщение записано")
}
