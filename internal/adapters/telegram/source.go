package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

type updatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Source получает обновления Bot API длинным опросом и превращает их в события приёма.
type Source struct {
	connect     func() (updatesAPI, error)
	pollTimeout int
	log         zerolog.Logger
}

// NewSource создаёт источник. Подключение к Bot API происходит в Run.
func NewSource(token string, pollTimeout int, logger zerolog.Logger) *Source {
	return &Source{
		connect: func() (updatesAPI, error) {
			return tgbotapi.NewBotAPI(token)
		},
		pollTimeout: pollTimeout,
		log:         logger,
	}
}

// ErrUpdatesClosed — Bot API закрыл канал обновлений.
var ErrUpdatesClosed = errors.New("telegram: updates channel closed")

// Run публикует события в out до отмены контекста. Отказ в авторизации
// сообщается событием auth_failed и возвращается как ErrAuthRejected.
func (s *Source) Run(ctx context.Context, out chan<- domain.IngestEvent) error {
	api, err := s.connect()
	if err != nil {
		auth, cerr := connectError(err)
		state := domain.ConnectionDisconnected
		if auth {
			state = domain.ConnectionAuthFailed
		}
		emit(ctx, out, domain.IngestEvent{Kind: domain.EventConnection, State: state, Reason: cerr.Error()})
		return cerr
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = s.pollTimeout
	cfg.AllowedUpdates = []string{"message"}
	updates := api.GetUpdatesChan(cfg)
	defer api.StopReceivingUpdates()

	emit(ctx, out, domain.IngestEvent{Kind: domain.EventConnection, State: domain.ConnectionReady})
	s.log.Info().Msg("telegram: получение обновлений запущено")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				emit(ctx, out, domain.IngestEvent{Kind: domain.EventConnection, State: domain.ConnectionDisconnected, Reason: ErrUpdatesClosed.Error()})
				return ErrUpdatesClosed
			}
			ev, ok := toEvent(upd)
			if !ok {
				continue
			}
			if !emit(ctx, out, ev) {
				return ctx.Err()
			}
		}
	}
}

func emit(ctx context.Context, out chan<- domain.IngestEvent, ev domain.IngestEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// toEvent извлекает входящее сообщение. Обновления без текста пропускаются.
func toEvent(upd tgbotapi.Update) (domain.IngestEvent, bool) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return domain.IngestEvent{}, false
	}
	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	if body == "" {
		return domain.IngestEvent{}, false
	}
	return domain.IngestEvent{
		Kind: domain.EventMessage,
		Message: domain.InboundMessage{
			ChatName:   msg.Chat.Title,
			IsGroup:    msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
			SenderName: senderName(msg),
			Body:       body,
			Timestamp:  msg.Time(),
		},
	}, true
}

func senderName(msg *tgbotapi.Message) string {
	if u := msg.From; u != nil {
		if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
			return name
		}
		if u.UserName != "" {
			return "@" + u.UserName
		}
	}
	if msg.SenderChat != nil && msg.SenderChat.Title != "" {
		return msg.SenderChat.Title
	}
	return "unknown"
}
