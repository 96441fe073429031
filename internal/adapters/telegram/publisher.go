package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
	"grouplog-digest/internal/infra/retry"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Publisher публикует сводки в чат или канал Telegram.
type Publisher struct {
	bot    sender
	policy retry.Policy
	log    zerolog.Logger
	now    func() time.Time
}

// NewPublisher создаёт публикатор поверх Bot API.
func NewPublisher(bot sender, policy retry.Policy, logger zerolog.Logger) *Publisher {
	return &Publisher{bot: bot, policy: policy.Normalized(), log: logger, now: time.Now}
}

// Publish отправляет сводку частями не длиннее лимита Bot API.
// channel — числовой chat_id или @username канала.
func (p *Publisher) Publish(ctx context.Context, a domain.SummaryArtifact, channel string) (domain.NotificationRecord, error) {
	record := domain.NotificationRecord{Artifact: a, Channel: channel, IdempotencyKey: a.IdempotencyKey()}
	fail := func(err error) (domain.NotificationRecord, error) {
		record.Status = domain.NotificationFailed
		record.PostedAt = p.now()
		record.Error = err.Error()
		return record, &domain.PublishError{Group: a.Group.DisplayName, Channel: channel, Permanent: domain.IsPermanent(err), Err: err}
	}
	if strings.TrimSpace(channel) == "" {
		return fail(domain.MarkPermanent(errors.New("telegram: chat id is empty")))
	}

	var ids []string
	for _, part := range SplitMessage(FormatSummary(a), MessageLimit) {
		msg := newMessage(channel, part)
		if msg == nil {
			return fail(domain.MarkPermanent(fmt.Errorf("telegram: invalid chat id %q", channel)))
		}
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		var sent tgbotapi.Message
		_, err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
			start := time.Now()
			var sendErr error
			sent, sendErr = p.bot.Send(*msg)
			metrics.ObserveNetworkRequest("telegram_bot", "send_message", channel, start, sendErr)
			return classify(sendErr)
		}, func(err error, wait time.Duration) {
			p.log.Warn().Err(err).Str("group", a.Group.Slug).Dur("retry_in", wait).Msg("telegram: повтор отправки")
		})
		if err != nil {
			return fail(err)
		}
		ids = append(ids, strconv.Itoa(sent.MessageID))
	}
	record.Status = domain.NotificationPosted
	record.PostedAt = p.now()
	record.ExternalID = strings.Join(ids, ",")
	return record, nil
}

func newMessage(channel, text string) *tgbotapi.MessageConfig {
	channel = strings.TrimSpace(channel)
	if strings.HasPrefix(channel, "@") {
		msg := tgbotapi.NewMessageToChannel(channel, text)
		return &msg
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return nil
	}
	msg := tgbotapi.NewMessage(id, text)
	return &msg
}

// classify переводит ошибку Bot API в временную или постоянную.
func classify(err error) error {
	if err == nil {
		return nil
	}
	err = ScrubError(err)
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		return &retry.AfterError{Wait: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return domain.MarkPermanent(err)
	}
	return err
}
