package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/plushkinv/YadrenoVPN/config"
	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

// Тексты отказов. Плательщику не сообщается, чем именно плох платёж:
// детали различаются только в логах.
const (
	msgBadPayment    = "❌ Неверные платёжные данные. Попробуйте снова."
	msgConfigError   = "❌ Ошибка конфигурации. Обратитесь в поддержку."
	msgOrderNotFound = "❌ Платёж не найден. Обратитесь в поддержку, указав номер заказа."
	msgOrderExpired  = "❌ Срок действия платежа истёк. Создайте новый."
	msgGenericError  = "❌ Ошибка обработки платежа. Попробуйте позже."
)

func paymentErrorText(err error) string {
	switch {
	case errors.Is(err, services.ErrMalformedCallback),
		errors.Is(err, services.ErrInvalidSignature),
		errors.Is(err, services.ErrTariffUnresolved):
		return msgBadPayment
	case errors.Is(err, services.ErrSecretNotConfigured):
		return msgConfigError
	case errors.Is(err, services.ErrOrderNotFound):
		return msgOrderNotFound
	case errors.Is(err, services.ErrOrderExpired):
		return msgOrderExpired
	default:
		return msgGenericError
	}
}

// HandleCryptoStart обрабатывает /start с параметром bill... —
// редирект из криптопроцессинга после оплаты
func HandleCryptoStart(botapi *tgbotapi.BotAPI, msg *tgbotapi.Message, startParam string) {
	defer logger.NotifyOnPanic("HandleCryptoStart")

	user, err := db.GetOrCreateUser(msg.From.ID, msg.From.UserName)
	if err != nil {
		botapi.Send(tgbotapi.NewMessage(msg.Chat.ID, msgGenericError))
		return
	}
	res, err := billing.ProcessCryptoPayment(startParam, user.ID)
	if err != nil {
		botapi.Send(tgbotapi.NewMessage(msg.Chat.ID, paymentErrorText(err)))
		return
	}
	deliverPaymentResult(botapi, msg.Chat.ID, res)
}

// HandleSuccessfulPayment обрабатывает подтверждённый платёж Telegram Stars.
// Telegram может доставить уведомление повторно — движок это учитывает.
func HandleSuccessfulPayment(botapi *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	defer logger.NotifyOnPanic("HandleSuccessfulPayment")

	payment := msg.SuccessfulPayment
	logger.Info("stars payment received",
		zap.String("payload", payment.InvoicePayload),
		zap.String("charge_id", payment.TelegramPaymentChargeID))

	res, err := billing.ProcessStarsPayment(payment.InvoicePayload)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// Деньги пришли, заказа нет: плательщика не бросаем, разбор ручной
			botapi.Send(tgbotapi.NewMessage(msg.Chat.ID,
				"✅ Оплата принята!\n\n⚠️ Возникла проблема с обработкой. Мы свяжемся с вами."))
			return
		}
		botapi.Send(tgbotapi.NewMessage(msg.Chat.ID, paymentErrorText(err)))
		return
	}
	deliverPaymentResult(botapi, msg.Chat.ID, res)
}

// deliverPaymentResult доносит итог обработки до пользователя и запускает
// следующий шаг для нового ключа
func deliverPaymentResult(botapi *tgbotapi.BotAPI, chatID int64, res *services.PaymentResult) {
	switch res.Outcome {
	case services.OutcomeAwaitingServer:
		sendServerSelection(botapi, chatID, res)
	case services.OutcomeRenewed:
		syncRenewedKey(res.Order)
		botapi.Send(tgbotapi.NewMessage(chatID, res.Message))
	default:
		botapi.Send(tgbotapi.NewMessage(chatID, res.Message))
	}
}

// syncRenewedKey передвигает срок клиента на панели вслед за продлением в БД.
// Неудача не отменяет оплату: срок в БД главный, панель чинится вручную.
func syncRenewedKey(order *db.Payment) {
	if order == nil || order.VPNKeyID == nil {
		return
	}
	key, err := db.GetVPNKeyByID(*order.VPNKeyID)
	if err != nil || key == nil {
		return
	}
	cfg, ok := key.Provisioned()
	if !ok {
		return
	}
	srv, err := db.GetServerByID(cfg.ServerID)
	if err != nil {
		return
	}
	user, err := db.GetUserByID(key.UserID)
	if err != nil || user == nil {
		return
	}
	client := services.NewXUIClient(srv)
	err = client.UpdateClientExpiry(cfg.PanelInboundID, cfg.ClientUUID, cfg.PanelEmail,
		key.ExpiresAt, config.AppCfg.DefaultLimitIP, strconv.FormatInt(user.TelegramID, 10))
	if err != nil {
		logger.Error("panel expiry sync failed after renewal",
			zap.Uint("key_id", key.ID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Панель не приняла продление ключа %d (заказ %s): %v", key.ID, order.OrderID, err))
	}
}

func sendServerSelection(botapi *tgbotapi.BotAPI, chatID int64, res *services.PaymentResult) {
	servers, err := db.GetActiveServers()
	if err != nil || len(servers) == 0 {
		logger.Error("no active servers for a paid order", zap.String("order_id", res.Order.OrderID))
		logger.NotifyAdmin("Оплачен заказ " + res.Order.OrderID + ", но нет активных серверов!")
		botapi.Send(tgbotapi.NewMessage(chatID,
			"🎉 Оплата прошла успешно!\n\n⚠️ Сейчас нет доступных серверов. Свяжитесь с поддержкой."))
		return
	}
	msg := tgbotapi.NewMessage(chatID, res.Message)
	msg.ReplyMarkup = ServerKeyboard(servers, res.Order.OrderID)
	botapi.Send(msg)
}

// --- Покупка и продление: создание заказов и инвойсов ---

// SendStarsInvoice отправляет инвойс Telegram Stars.
// Валюта XTR, токен провайдера не нужен.
func SendStarsInvoice(botapi *tgbotapi.BotAPI, chatID int64, title, description, payload string, stars int) error {
	invoice := tgbotapi.NewInvoice(chatID, title, description, payload, "", "", "XTR",
		[]tgbotapi.LabeledPrice{{Label: title, Amount: stars}})
	invoice.SuggestedTipAmounts = []int{}
	_, err := botapi.Send(invoice)
	return err
}

// StartStarsPurchase создаёт pending-заказ на новый ключ и шлёт инвойс.
// Payload инвойса — голый order_id.
func StartStarsPurchase(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, tariffID uint) {
	tariff, err := db.GetTariffByID(tariffID)
	if err != nil || tariff == nil {
		answerCallback(botapi, cq, "Тариф не найден")
		return
	}
	user, err := db.GetOrCreateUser(cq.From.ID, cq.From.UserName)
	if err != nil {
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	_, orderID, err := db.CreatePendingOrder(user.ID, &tariff.ID, db.PaymentTypeStars, nil)
	if err != nil {
		logger.Error("pending order creation failed", zap.Error(err))
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	err = SendStarsInvoice(botapi, cq.Message.Chat.ID,
		"VPN: "+tariff.Name,
		fmt.Sprintf("Новый VPN-ключ: %s, %d дн.", tariff.Name, tariff.DurationDays),
		orderID, tariff.PriceStars)
	if err != nil {
		logger.Error("invoice send failed", zap.String("order_id", orderID), zap.Error(err))
	}
	answerCallback(botapi, cq, "")
}

// StartStarsRenewal создаёт pending-заказ на продление ключа и шлёт инвойс.
// Payload инвойса — renew:<order_id>.
func StartStarsRenewal(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, keyID, tariffID uint) {
	key, ok := userKey(botapi, cq, keyID)
	if !ok {
		return
	}
	tariff, err := db.GetTariffByID(tariffID)
	if err != nil || tariff == nil {
		answerCallback(botapi, cq, "Тариф не найден")
		return
	}
	// Владелец ключа уже проверен в userKey, заказ создаётся на него же
	_, orderID, err := db.CreatePendingOrder(key.UserID, &tariff.ID, db.PaymentTypeStars, &key.ID)
	if err != nil {
		logger.Error("renewal order creation failed", zap.Error(err))
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	err = SendStarsInvoice(botapi, cq.Message.Chat.ID,
		"Продление VPN: "+tariff.Name,
		fmt.Sprintf("Продление ключа #%d: %s, %d дн.", key.ID, tariff.Name, tariff.DurationDays),
		"renew:"+orderID, tariff.PriceStars)
	if err != nil {
		logger.Error("invoice send failed", zap.String("order_id", orderID), zap.Error(err))
	}
	answerCallback(botapi, cq, "")
}

// StartCryptoPurchase создаёт pending-заказ под оплату криптой и отдаёт
// ссылку на процессинг. Тариф фиксируется в заказе и в цене ссылки;
// плательщик всё равно может переиграть его в интерфейсе процессинга,
// тогда снимок обновится при callback.
func StartCryptoPurchase(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, tariffID uint, keyID *uint) {
	tariff, err := db.GetTariffByID(tariffID)
	if err != nil || tariff == nil {
		answerCallback(botapi, cq, "Тариф не найден")
		return
	}
	itemURL, _ := db.GetSetting(db.SettingCryptoItemURL)
	itemID := services.ExtractItemIDFromURL(itemURL)
	if itemID == "" {
		answerCallback(botapi, cq, "Оплата криптовалютой временно недоступна")
		return
	}
	user, err := db.GetOrCreateUser(cq.From.ID, cq.From.UserName)
	if err != nil {
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	_, orderID, err := db.CreatePendingOrder(user.ID, &tariff.ID, db.PaymentTypeCrypto, keyID)
	if err != nil {
		logger.Error("crypto order creation failed", zap.Error(err))
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	url := services.BuildCryptoPaymentURL(itemID, orderID, tariff.PriceCents)
	msg := tgbotapi.NewMessage(cq.Message.Chat.ID,
		fmt.Sprintf("🪙 Оплата криптовалютой\n\nЗаказ %s: %s\n\nПерейдите по ссылке и завершите оплату, после неё вы вернётесь в бота:\n%s", orderID, tariff.Name, url))
	botapi.Send(msg)
	answerCallback(botapi, cq, "")
}

// --- Настройка нового ключа после оплаты ---

// HandleNewKeyServer — выбран сервер. Если на нём один inbound,
// протокол выбирается автоматически.
func HandleNewKeyServer(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, orderID string, serverID uint) {
	srv, err := db.GetServerByID(serverID)
	if err != nil {
		answerCallback(botapi, cq, "Сервер не найден")
		return
	}
	client := services.NewXUIClient(srv)
	inbounds, err := client.GetInbounds()
	if err != nil {
		logger.Error("failed to list inbounds", zap.Uint("server_id", serverID), zap.Error(err))
		answerCallback(botapi, cq, "❌ Сервер недоступен, попробуйте другой")
		return
	}
	if len(inbounds) == 0 {
		answerCallback(botapi, cq, "❌ На сервере нет доступных протоколов")
		return
	}
	if len(inbounds) == 1 {
		finalizeNewKey(botapi, cq, orderID, serverID, inbounds[0].ID)
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID,
		fmt.Sprintf("🖥️ Сервер: %s\n\nВыберите протокол:", srv.Name),
		InboundKeyboard(inbounds, orderID, serverID))
	botapi.Send(edit)
	answerCallback(botapi, cq, "")
}

// finalizeNewKey — финал настройки: клиент создаётся на панели,
// черновик превращается в полноценный ключ
func finalizeNewKey(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, orderID string, serverID uint, inboundID int) {
	order, err := db.FindOrder(orderID)
	if err != nil || order == nil {
		answerCallback(botapi, cq, "❌ Заказ не найден")
		return
	}
	// Order_id короткий и приходит из callback data: чужой заказ
	// настроить нельзя
	caller, err := db.GetUserByTelegramID(cq.From.ID)
	if err != nil || caller == nil || order.UserID != caller.ID {
		answerCallback(botapi, cq, "Это не ваш заказ")
		return
	}
	if order.VPNKeyID == nil {
		logger.Error("paid order has no draft key", zap.String("order_id", orderID))
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	key, err := db.GetVPNKeyByID(*order.VPNKeyID)
	if err != nil || key == nil {
		answerCallback(botapi, cq, msgGenericError)
		return
	}
	if !key.IsDraft() {
		// Кнопку нажали повторно: ключ уже настроен, второй раз не настраиваем
		answerCallback(botapi, cq, "Ключ уже настроен")
		return
	}
	srv, err := db.GetServerByID(serverID)
	if err != nil {
		answerCallback(botapi, cq, "Сервер не найден")
		return
	}

	botapi.Send(tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, "⏳ Создаём ваш ключ..."))

	panelEmail := fmt.Sprintf("user_%d_k%d", cq.From.ID, key.ID)
	client := services.NewXUIClient(srv)
	res, err := client.AddClient(inboundID, panelEmail, config.AppCfg.DefaultLimitGB,
		key.ExpiresAt, config.AppCfg.DefaultLimitIP, strconv.FormatInt(cq.From.ID, 10))
	if err != nil {
		logger.Error("panel add client failed",
			zap.String("order_id", orderID), zap.Uint("server_id", serverID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Не удалось создать клиента на панели для заказа %s: %v", orderID, err))
		botapi.Send(tgbotapi.NewMessage(cq.Message.Chat.ID,
			"❌ Ошибка создания ключа. Обратитесь в поддержку, указав номер заказа: "+orderID))
		answerCallback(botapi, cq, "")
		return
	}

	ok, err := db.AttachServerToKey(key.ID, serverID, inboundID, res.UUID, panelEmail)
	if err != nil || !ok {
		// Клиент на панели уже есть, а запись не обновилась — чиним руками
		logger.Error("attach server to key failed",
			zap.Uint("key_id", key.ID), zap.Error(err))
		logger.NotifyAdmin(fmt.Sprintf("Ключ %d создан на панели, но не привязан в БД (заказ %s)", key.ID, orderID))
	}

	botapi.Send(tgbotapi.NewMessage(cq.Message.Chat.ID, fmt.Sprintf(
		"✅ Ваш ключ готов!\n\n🖥️ Сервер: %s\n🔑 Идентификатор: %s\n📅 Действует до: %s\n\nКлюч доступен в разделе /keys.",
		srv.Name, panelEmail, key.ExpiresAt.Format("02.01.2006"))))
	answerCallback(botapi, cq, "")
}

// userKey возвращает ключ, если он принадлежит автору callback
func userKey(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, keyID uint) (*db.VPNKey, bool) {
	key, err := db.GetVPNKeyByID(keyID)
	if err != nil || key == nil {
		answerCallback(botapi, cq, "❌ Ключ не найден")
		return nil, false
	}
	user, err := db.GetUserByTelegramID(cq.From.ID)
	if err != nil || user == nil || key.UserID != user.ID {
		answerCallback(botapi, cq, "Это не ваш ключ")
		return nil, false
	}
	return key, true
}

func answerCallback(botapi *tgbotapi.BotAPI, cq *tgbotapi.CallbackQuery, text string) {
	botapi.Request(tgbotapi.NewCallback(cq.ID, text))
}

// parseCallbackIDs разбирает числовые сегменты callback data после префикса
func parseCallbackIDs(data, prefix string) []uint {
	var ids []uint
	for _, part := range strings.Split(strings.TrimPrefix(data, prefix), ":") {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil
		}
		ids = append(ids, uint(n))
	}
	return ids
}
