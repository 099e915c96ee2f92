package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const enginePrefix = "engine:"

// engineKeyboard offers one button per configured backend.
func engineKeyboard(names []string) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(names) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(names))
	for _, n := range names {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strings.ToUpper(n[:1])+n[1:], enginePrefix+n))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}
