package telegram

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// slogBotLogger routes tgbotapi's internal logging through slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (s *slogBotLogger) Println(v ...any) {
	s.log.Warn(fmt.Sprint(v...))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.log.Warn(fmt.Sprintf(format, v...))
}

// InstallLogger makes tgbotapi log through logger.
func InstallLogger(logger *slog.Logger) error {
	return tgbotapi.SetLogger(&slogBotLogger{log: logger.With("component", "tgbotapi")})
}
