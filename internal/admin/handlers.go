package admin

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plushkinv/YadrenoVPN/config"
	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

// billing задаётся из main: смена крипто-секрета должна долетать
// до движка без перезапуска
var billing *services.Billing

func Init(b *services.Billing) {
	billing = b
}

func HandleAdminCommand(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	if !config.AppCfg.IsAdmin(msg.From.ID) {
		return
	}
	cmd := msg.Command()
	switch cmd {
	case "admin_stats":
		handleStats(bot, msg)
	case "admin_tariffs":
		handleTariffs(bot, msg)
	case "admin_payments":
		handlePayments(bot, msg)
	case "admin_servers":
		handleServers(bot, msg)
	case "admin_crypto":
		handleCrypto(bot, msg)
	case "admin_backup":
		handleBackup(bot, msg)
	}
	logger.LogAdminAction(msg.From.ID, cmd, msg.Text)
}

func handleStats(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	now := time.Now()
	day := now.Add(-24 * time.Hour)
	month := now.AddDate(0, 0, -30)
	text := fmt.Sprintf(
		"📊 Статистика\n\n"+
			"Пользователей: %d\n"+
			"Активных ключей: %d\n"+
			"Черновиков: %d\n\n"+
			"За сутки: %d оплат, %.2f ₽ + %d ⭐\n"+
			"За 30 дней: %d оплат, %.2f ₽ + %d ⭐",
		db.CountUsers(), db.CountActiveKeys(), db.CountDraftKeys(),
		db.CountPaidOrders(day, now), float64(db.SumPaidCents(day, now))/100, db.SumPaidStars(day, now),
		db.CountPaidOrders(month, now), float64(db.SumPaidCents(month, now))/100, db.SumPaidStars(month, now),
	)
	bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text))
}

func handleTariffs(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	tariffs, err := db.GetAllTariffs()
	if err != nil || len(tariffs) == 0 {
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Тарифов нет"))
		return
	}
	var sb strings.Builder
	sb.WriteString("💳 Тарифы:\n\n")
	for _, t := range tariffs {
		ext := "-"
		if t.ExternalID != nil {
			ext = fmt.Sprintf("%d", *t.ExternalID)
		}
		state := "✅"
		if !t.IsActive {
			state = "🚫"
		}
		sb.WriteString(fmt.Sprintf("%s #%d %s: %d дн., %d ц., %d ⭐, внешний №%s\n",
			state, t.ID, t.Name, t.DurationDays, t.PriceCents, t.PriceStars, ext))
	}
	bot.Send(tgbotapi.NewMessage(msg.Chat.ID, sb.String()))
}

func handlePayments(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	pays := db.GetRecentPayments(15)
	if len(pays) == 0 {
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Платежей нет"))
		return
	}
	var sb strings.Builder
	sb.WriteString("💰 Последние заказы:\n\n")
	for _, p := range pays {
		sb.WriteString(fmt.Sprintf("%s | %s | %s | %d ц. / %d ⭐\n",
			p.OrderID, p.Status, p.PaymentType, p.AmountCents, p.AmountStars))
	}
	bot.Send(tgbotapi.NewMessage(msg.Chat.ID, sb.String()))
}

func handleServers(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	statuses := services.GetServerStatuses()
	if len(statuses) == 0 {
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Статусы серверов ещё не собраны"))
		return
	}
	var sb strings.Builder
	sb.WriteString("🖥️ Серверы:\n\n")
	for _, s := range statuses {
		mark := "✅ online"
		if !s.Online {
			mark = "❌ offline"
		}
		sb.WriteString(fmt.Sprintf("#%d %s — %s (проверено %s)\n",
			s.ID, s.Name, mark, s.LastChecked.Format("15:04:05")))
	}
	bot.Send(tgbotapi.NewMessage(msg.Chat.ID, sb.String()))
}

// handleCrypto настраивает криптопроцессинг:
// /admin_crypto secret <ключ> | /admin_crypto url <ссылка на товар>
func handleCrypto(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		secret, _ := db.GetSetting(db.SettingCryptoSecretKey)
		url, _ := db.GetSetting(db.SettingCryptoItemURL)
		state := "не задан"
		if secret != "" {
			state = "задан"
		}
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID,
			fmt.Sprintf("Криптопроцессинг:\nсекрет: %s\nтовар: %s\n\nИспользование: /admin_crypto secret|url <значение>", state, url)))
		return
	}
	switch args[0] {
	case "secret":
		if err := db.SetSetting(db.SettingCryptoSecretKey, args[1]); err != nil {
			bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Ошибка сохранения: "+err.Error()))
			return
		}
		if billing != nil {
			billing.SetCryptoSecret(args[1])
		}
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "✅ Секретный ключ обновлён"))
	case "url":
		if services.ExtractItemIDFromURL(args[1]) == "" {
			bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Из ссылки не извлекается item_id"))
			return
		}
		if err := db.SetSetting(db.SettingCryptoItemURL, args[1]); err != nil {
			bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Ошибка сохранения: "+err.Error()))
			return
		}
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "✅ Ссылка на товар обновлена"))
	default:
		bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Использование: /admin_crypto secret|url <значение>"))
	}
}
