package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"grouplog-digest/internal/domain"
)

const (
	defaultAttempts = 3
	maxAttempts     = 10
	defaultBase     = 800 * time.Millisecond
	defaultMaxDelay = 30 * time.Second
)

// Policy задаёт ограниченный экспоненциальный повтор.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Normalized подставляет значения по умолчанию и ограничивает число попыток.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultAttempts
	}
	if p.MaxAttempts > maxAttempts {
		p.MaxAttempts = maxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBase
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// AfterError просит подождать не меньше указанного времени перед следующей попыткой
// (например, по заголовку Retry-After).
type AfterError struct {
	Wait time.Duration
	Err  error
}

func (e *AfterError) Error() string { return e.Err.Error() }
func (e *AfterError) Unwrap() error { return e.Err }

// NotifyFunc вызывается перед каждой паузой.
type NotifyFunc func(err error, wait time.Duration)

// Do выполняет op с повторами. Ошибки, помеченные domain.MarkPermanent, не повторяются.
// Возвращает число выполненных попыток и последнюю ошибку.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify NotifyFunc) (int, error) {
	p = p.Normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()

	hinted := &hintedBackOff{next: exp, maxDelay: p.MaxDelay}
	b := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if domain.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		var after *AfterError
		if errors.As(err, &after) {
			hinted.hint = after.Wait
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	return attempts, err
}

// hintedBackOff увеличивает паузу до подсказки сервера, не выходя за maxDelay.
type hintedBackOff struct {
	next     backoff.BackOff
	hint     time.Duration
	maxDelay time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if h.hint > d {
		d = h.hint
		if d > h.maxDelay {
			d = h.maxDelay
		}
	}
	h.hint = 0
	return d
}

func (h *hintedBackOff) Reset() {
	h.hint = 0
	h.next.Reset()
}
