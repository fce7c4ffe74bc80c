package services

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// SendDailyDigest отправляет админам сводку за прошедшие сутки
func SendDailyDigest(bot *tgbotapi.BotAPI, adminIDs []int64) {
	defer logger.NotifyOnPanic("SendDailyDigest")

	now := time.Now()
	from := now.Add(-24 * time.Hour)
	text := fmt.Sprintf(
		"📊 Сводка за сутки\n\n"+
			"Оплат: %d\n"+
			"Выручка: %.2f ₽ + %d ⭐\n"+
			"Пользователей всего: %d\n"+
			"Активных ключей: %d\n"+
			"Черновиков без сервера: %d",
		db.CountPaidOrders(from, now),
		float64(db.SumPaidCents(from, now))/100,
		db.SumPaidStars(from, now),
		db.CountUsers(),
		db.CountActiveKeys(),
		db.CountDraftKeys(),
	)
	for _, id := range adminIDs {
		bot.Send(tgbotapi.NewMessage(id, text))
	}
}
