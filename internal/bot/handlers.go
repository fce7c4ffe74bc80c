package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/plushkinv/YadrenoVPN/internal/admin"
	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

var rateLimiter = NewRateLimiter()

const welcomeText = "🔐 Добро пожаловать в VPN-бот!\n\n" +
	"Быстрый, безопасный и анонимный доступ к интернету.\n\n" +
	"/buy — купить ключ\n" +
	"/keys — мои ключи\n" +
	"/help — помощь"

const helpText = "🔐 Этот бот предоставляет доступ к VPN-сервису.\n\n" +
	"Как это работает:\n" +
	"1. Купите ключ через /buy\n" +
	"2. Установите VPN-клиент (Hiddify, v2rayNG, V2Box)\n" +
	"3. Импортируйте ключ и подключайтесь 🚀"

func HandleUpdate(botapi *tgbotapi.BotAPI, update tgbotapi.Update) {
	// Паника в обработчике не должна ронять цикл полинга
	defer logger.NotifyOnPanic("HandleUpdate")

	// Pre-checkout подтверждаем всегда: все проверки сделаны при
	// создании инвойса, отказ здесь просто заморозит оплату
	if update.PreCheckoutQuery != nil {
		botapi.Request(tgbotapi.PreCheckoutConfig{
			PreCheckoutQueryID: update.PreCheckoutQuery.ID,
			OK:                 true,
		})
		return
	}

	if update.Message != nil && update.Message.From != nil {
		handleMessage(botapi, update.Message)
		return
	}
	if update.CallbackQuery != nil {
		handleCallback(botapi, update.CallbackQuery)
	}
}

func handleMessage(botapi *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	user, err := db.GetOrCreateUser(msg.From.ID, msg.From.UserName)
	if err != nil {
		logger.Error("user upsert failed", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		return
	}
	if user.IsBanned {
		return
	}

	if msg.SuccessfulPayment != nil {
		HandleSuccessfulPayment(botapi, msg)
		return
	}
	if !msg.IsCommand() {
		return
	}

	// Возврат из криптопроцессинга не лимитируется: повторного
	// редиректа с тем же payload может не быть
	if msg.Command() == "start" {
		if args := msg.CommandArguments(); strings.HasPrefix(args, services.CryptoCallbackPrefix) {
			HandleCryptoStart(botapi, msg, args)
			return
		}
	}

	cmd := "/" + msg.Command()
	if rateLimiter.IsLimited(msg.From.ID, cmd) {
		return
	}
	if strings.HasPrefix(msg.Command(), "admin_") {
		admin.HandleAdminCommand(botapi, msg)
		return
	}

	switch msg.Command() {
	case "start":
		botapi.Send(tgbotapi.NewMessage(msg.Chat.ID, welcomeText))
	case "buy":
		sendTariffList(botapi, msg.Chat.ID)
	case "keys":
		sendUserKeys(botapi, msg.Chat.ID, user.ID)
	case "help":
		botapi.Send(tgbotapi.NewMessage(msg.Chat.ID, helpText))
	}
}

func handleCallback(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery) {
	user, err := db.GetOrCreateUser(cq.From.ID, cq.From.UserName)
	if err != nil || user.IsBanned {
		return
	}
	data := cq.Data

	switch {
	case strings.HasPrefix(data, "buy_tariff:"):
		ids := parseCallbackIDs(data, "buy_tariff:")
		if len(ids) != 1 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		sendPayMethods(botapi, cq, ids[0])
	case strings.HasPrefix(data, "pay_stars:"):
		ids := parseCallbackIDs(data, "pay_stars:")
		if len(ids) != 1 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		StartStarsPurchase(botapi, cq, ids[0])
	case strings.HasPrefix(data, "pay_crypto:"):
		ids := parseCallbackIDs(data, "pay_crypto:")
		if len(ids) != 1 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		StartCryptoPurchase(botapi, cq, ids[0], nil)
	case strings.HasPrefix(data, "renew_key:"):
		ids := parseCallbackIDs(data, "renew_key:")
		if len(ids) != 1 {
			answerCallback(botapi, cq, "Ошибка")
			return
		}
		sendRenewTariffs(botapi, cq, ids[0])
	case strings.HasPrefix(data, "renew_pick:"):
		ids := parseCallbackIDs(data, "renew_pick:")
		if len(ids) != 2 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		sendRenewPayMethods(botapi, cq, ids[0], ids[1])
	case strings.HasPrefix(data, "renew_stars:"):
		ids := parseCallbackIDs(data, "renew_stars:")
		if len(ids) != 2 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		StartStarsRenewal(botapi, cq, ids[0], ids[1])
	case strings.HasPrefix(data, "renew_crypto:"):
		ids := parseCallbackIDs(data, "renew_crypto:")
		if len(ids) != 2 {
			answerCallback(botapi, cq, "Ошибка выбора тарифа")
			return
		}
		keyID := ids[0]
		StartCryptoPurchase(botapi, cq, ids[1], &keyID)
	case strings.HasPrefix(data, "new_key_server:"):
		orderID, ids, ok := parseOrderCallback(data, "new_key_server:", 1)
		if !ok {
			answerCallback(botapi, cq, "Ошибка выбора сервера")
			return
		}
		HandleNewKeyServer(botapi, cq, orderID, ids[0])
	case strings.HasPrefix(data, "new_key_inbound:"):
		orderID, ids, ok := parseOrderCallback(data, "new_key_inbound:", 2)
		if !ok {
			answerCallback(botapi, cq, "Ошибка выбора протокола")
			return
		}
		finalizeNewKey(botapi, cq, orderID, ids[0], int(ids[1]))
	default:
		answerCallback(botapi, cq, "")
	}
}

// parseOrderCallback разбирает callback вида prefix<order_id>:<id>[:<id>...]
func parseOrderCallback(data, prefix string, wantIDs int) (string, []uint, bool) {
	rest := strings.TrimPrefix(data, prefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", nil, false
	}
	ids := parseCallbackIDs(parts[1], "")
	if len(ids) != wantIDs {
		return "", nil, false
	}
	return parts[0], ids, true
}

func sendTariffList(botapi *tgbotapi.BotAPI, chatID int64) {
	tariffs, err := db.GetActiveTariffs()
	if err != nil || len(tariffs) == 0 {
		botapi.Send(tgbotapi.NewMessage(chatID, "😔 Сейчас нет доступных тарифов."))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "💳 Выберите тариф:")
	msg.ReplyMarkup = TariffKeyboard(tariffs, "buy_tariff:")
	botapi.Send(msg)
}

func sendPayMethods(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, tariffID uint) {
	tariff, err := db.GetTariffByID(tariffID)
	if err != nil || tariff == nil {
		answerCallback(botapi, cq, "Тариф не найден")
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("Тариф: %s (%d дн.)\n\nВыберите способ оплаты:", tariff.Name, tariff.DurationDays),
		PayMethodKeyboard(tariff.ID, db.IsCryptoConfigured()))
	botapi.Send(edit)
	answerCallback(botapi, cq, "")
}

func sendRenewTariffs(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, keyID uint) {
	key, ok := userKey(botapi, cq, keyID)
	if !ok {
		return
	}
	tariffs, err := db.GetActiveTariffs()
	if err != nil || len(tariffs) == 0 {
		answerCallback(botapi, cq, "Нет доступных тарифов")
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("♻️ Продление ключа #%d\n\nВыберите тариф:", key.ID),
		TariffKeyboard(tariffs, fmt.Sprintf("renew_pick:%d:", key.ID)))
	botapi.Send(edit)
	answerCallback(botapi, cq, "")
}

func sendRenewPayMethods(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, keyID, tariffID uint) {
	tariff, err := db.GetTariffByID(tariffID)
	if err != nil || tariff == nil {
		answerCallback(botapi, cq, "Тариф не найден")
		return
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Telegram Stars", fmt.Sprintf("renew_stars:%d:%d", keyID, tariffID)),
		),
	}
	if db.IsCryptoConfigured() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🪙 Криптовалюта", fmt.Sprintf("renew_crypto:%d:%d", keyID, tariffID)),
		))
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("Продление: %s (%d дн.)\n\nВыберите способ оплаты:", tariff.Name, tariff.DurationDays),
		tgbotapi.NewInlineKeyboardMarkup(rows...))
	botapi.Send(edit)
	answerCallback(botapi, cq, "")
}

func sendUserKeys(botapi *tgbotapi.BotAPI, chatID int64, userID uint) {
	keys, err := db.GetUserKeys(userID)
	if err != nil || len(keys) == 0 {
		botapi.Send(tgbotapi.NewMessage(chatID, "У вас пока нет ключей. Купить: /buy"))
		return
	}
	msg := tgbotapi.NewMessage(chatID, "🔑 Ваши ключи (нажмите для продления):")
	msg.ReplyMarkup = KeyListKeyboard(keys)
	botapi.Send(msg)
}
