package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

// Publisher не даёт опубликовать один и тот же артефакт повторно в течение ttl.
// Ключ снимается, если публикация не удалась, так что повтор запуска отправит сводку снова.
type Publisher struct {
	next  domain.Publisher
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// New оборачивает публикатор.
func New(next domain.Publisher, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Publisher {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Publisher{next: next, cache: cache, ttl: ttl, log: logger}
}

// Publish реализует domain.Publisher.
func (p *Publisher) Publish(ctx context.Context, a domain.SummaryArtifact, channel string) (domain.NotificationRecord, error) {
	key := "grouplog:published:" + channel + ":" + a.IdempotencyKey()
	var (
		record domain.NotificationRecord
		ran    bool
	)
	err := p.cache.Once(ctx, key, p.ttl, func() error {
		ran = true
		var pubErr error
		record, pubErr = p.next.Publish(ctx, a, channel)
		return pubErr
	})
	if ran {
		return record, err
	}
	if err != nil {
		// Хранилище ключей недоступно: публикуем без защиты от дублей.
		p.log.Warn().Err(err).Str("group", a.Group.Slug).Msg("dedup: проверка ключа не удалась")
		return p.next.Publish(ctx, a, channel)
	}
	p.log.Info().Str("group", a.Group.Slug).Str("channel", channel).Msg("dedup: сводка уже опубликована")
	return domain.NotificationRecord{
		Artifact:       a,
		Channel:        channel,
		PostedAt:       time.Now(),
		Status:         domain.NotificationDuplicate,
		IdempotencyKey: a.IdempotencyKey(),
	}, nil
}
