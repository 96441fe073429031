package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrAuthRejected — Bot API отклонил токен.
var ErrAuthRejected = errors.New("telegram: bot token rejected")

var botTokenRe = regexp.MustCompile(`/bot[^/]+/`)

// ScrubError убирает токен бота из URL в сетевых ошибках, чтобы он не попал в логи.
func ScrubError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return &url.Error{Op: uerr.Op, URL: botTokenRe.ReplaceAllString(uerr.URL, "/bot***/"), Err: uerr.Err}
}

// connectError различает отказ в авторизации и прочие ошибки подключения.
func connectError(err error) (auth bool, out error) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
		return true, fmt.Errorf("%w: %s", ErrAuthRejected, apiErr.Message)
	}
	return false, ScrubError(err)
}
