package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type botLogger struct {
	log zerolog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Warn().Msg("telegram: " + botTokenRe.ReplaceAllString(fmt.Sprint(v...), "/bot***/"))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Warn().Msg("telegram: " + botTokenRe.ReplaceAllString(fmt.Sprintf(format, v...), "/bot***/"))
}

// InstallLogger перенаправляет внутренний лог Bot API в zerolog с маскировкой токена.
func InstallLogger(logger zerolog.Logger) {
	_ = tgbotapi.SetLogger(botLogger{log: logger})
}
