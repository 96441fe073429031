package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName — имя файла не соответствует соглашению для настроенных групп.
	ErrInvalidName = errors.New("invalid log file name")
	// ErrNotFound — файл журнала не найден.
	ErrNotFound = errors.New("log file not found")
	// ErrNoSegments — для группы не найдено ни одного сегмента.
	ErrNoSegments = errors.New("no log segments for group")
	// ErrPermanent помечает ошибки, которые не имеет смысла повторять.
	ErrPermanent = errors.New("permanent failure")
)

type permanentError struct {
	err error
}

func (e permanentError) Error() string        { return e.err.Error() }
func (e permanentError) Unwrap() error        { return e.err }
func (e permanentError) Is(target error) bool { return target == ErrPermanent }

// MarkPermanent помечает ошибку как неповторяемую.
func MarkPermanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// WriteError — ошибка дозаписи в сегмент.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("append %s: %v", e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// SummarizeError — ошибка суммаризации группы.
type SummarizeError struct {
	Group     string
	Permanent bool
	Err       error
}

func (e *SummarizeError) Error() string {
	kind := "transient, retries exhausted"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("summarize %s (%s): %v", e.Group, kind, e.Err)
}

func (e *SummarizeError) Unwrap() error { return e.Err }

// PublishError — ошибка публикации сводки в канал.
type PublishError struct {
	Group     string
	Channel   string
	Permanent bool
	Err       error
}

func (e *PublishError) Error() string {
	kind := "transient, retries exhausted"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("publish %s to %s (%s): %v", e.Group, e.Channel, kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
