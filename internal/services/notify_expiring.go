package services

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// NotifyExpiringKeys уведомляет владельцев ключей, истекающих в ближайшие
// дни. Отметка в notification_log защищает от повторной отправки в тот же день.
func NotifyExpiringKeys(bot *tgbotapi.BotAPI) {
	defer logger.NotifyOnPanic("NotifyExpiringKeys")

	days := 3
	if v, err := db.GetSetting(db.SettingNotificationDays); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	text, _ := db.GetSetting(db.SettingNotificationText)
	if text == "" {
		text = "⚠️ Ваш VPN-ключ истекает через {days} дн."
	}
	text = strings.ReplaceAll(text, "{days}", strconv.Itoa(days))

	keys, err := db.GetExpiringKeys(days)
	if err != nil {
		logger.Error("failed to load expiring keys", zap.Error(err))
		return
	}
	for _, key := range keys {
		sent, err := db.IsNotificationSentToday(key.ID)
		if err != nil || sent {
			continue
		}
		user, err := db.GetUserByID(key.UserID)
		if err != nil || user == nil {
			logger.Error("expiring key owner not found", zap.Uint("key_id", key.ID))
			continue
		}
		if _, err := bot.Send(tgbotapi.NewMessage(user.TelegramID, text)); err != nil {
			logger.Warn("expiry notification send failed",
				zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		db.LogNotificationSent(key.ID)
	}
}
