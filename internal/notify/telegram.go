package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Telegram отправляет уведомления через Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Send(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки уведомления")
		return err
	}
	return nil
}

func (t *Telegram) Delete(_ context.Context, userID int64, messageID int) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(userID, messageID)); err != nil {
		// сообщение могло быть удалено самим пользователем
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось удалить сообщение со счётом")
		return err
	}
	return nil
}
