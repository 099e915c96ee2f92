package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	answer := ""
	switch {
	case strings.HasPrefix(cb.Data, enginePrefix):
		text, err := r.selectEngine(cid, strings.TrimPrefix(cb.Data, enginePrefix), "")
		if err != nil {
			answer = err.Error()
		} else {
			answer = text
			r.send(cid, text)
		}
	default:
		answer = "unknown action"
	}
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
		r.logger().Debug("answer callback", zap.Error(err))
	}
}
