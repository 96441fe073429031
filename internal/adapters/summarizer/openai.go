package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/retry"
)

type completer interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

var _ domain.SummaryEngine = (*OpenAI)(nil)

// OpenAI реализует domain.SummaryEngine поверх Chat Completions с ограниченными повторами.
type OpenAI struct {
	client  completer
	policy  retry.Policy
	timeout time.Duration
	log     zerolog.Logger
}

// NewOpenAI создаёт движок суммаризации. timeout ограничивает одну попытку.
func NewOpenAI(client completer, policy retry.Policy, timeout time.Duration, logger zerolog.Logger) *OpenAI {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAI{client: client, policy: policy.Normalized(), timeout: timeout, log: logger}
}

// Complete выполняет запрос, повторяя временные ошибки с экспоненциальной паузой.
// Пустой ответ модели считается временной ошибкой.
func (s *OpenAI) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	var out string
	attempts, err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		text, err := s.client.Complete(attemptCtx, model, systemPrompt, userPrompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errEmptyCompletion
		}
		out = text
		return nil
	}, func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Str("model", model).Dur("retry_in", wait).Msg("summarizer: повтор запроса к модели")
	})
	if err != nil {
		s.log.Error().Err(err).Str("model", model).Int("attempts", attempts).Msg("summarizer: запрос к модели не удался")
		return "", err
	}
	return out, nil
}

var errEmptyCompletion = errors.New("summarizer: empty completion")
