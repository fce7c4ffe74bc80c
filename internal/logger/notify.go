package logger

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	botInstance *tgbotapi.BotAPI
	adminIDs    []int64
	once        sync.Once
)

// InitNotifier инициализирует Telegram-уведомления об ошибках
func InitNotifier(bot *tgbotapi.BotAPI, admins []int64) {
	once.Do(func() {
		botInstance = bot
		adminIDs = admins
	})
}

// NotifyAdmin отправляет критическое уведомление всем админам.
// Используется для событий, требующих ручного вмешательства
// (оплата без заказа, ошибка продления после оплаты и т.п.).
func NotifyAdmin(msg string) {
	if botInstance == nil {
		return
	}
	for _, id := range adminIDs {
		botInstance.Send(tgbotapi.NewMessage(id, "[ALERT] "+msg))
	}
}

// NotifyOnPanic ловит панику, логирует и уведомляет
func NotifyOnPanic(context string) {
	if r := recover(); r != nil {
		NotifyAdmin(fmt.Sprintf("Panic in %s: %v", context, r))
	}
}
