package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// BillingStore — всё, что движку биллинга нужно от хранилища.
// Узкий интерфейс позволяет тестировать движок без базы.
type BillingStore interface {
	IsOrderAlreadyPaid(orderID string) (bool, error)
	FindOrder(orderID string) (*db.Payment, error)
	CompleteOrder(orderID string) (bool, error)
	UpdateOrderTariff(orderID string, tariffID uint, paymentType string) (bool, error)
	CreateExternalPendingOrder(orderID string, userID uint, tariffID uint, paymentType string) error
	AttachKeyToOrder(orderID string, vpnKeyID uint) error
	ExtendVPNKey(keyID uint, days int) (bool, error)
	CreateDraftKey(userID, tariffID uint, days int) (uint, error)
	GetTariffByID(id uint) (*db.Tariff, error)
	GetTariffByExternalID(externalID int) (*db.Tariff, error)
}

// OrderStore — боевая реализация BillingStore поверх internal/db
type OrderStore struct{}

func (OrderStore) IsOrderAlreadyPaid(orderID string) (bool, error) { return db.IsOrderAlreadyPaid(orderID) }
func (OrderStore) FindOrder(orderID string) (*db.Payment, error)   { return db.FindOrder(orderID) }
func (OrderStore) CompleteOrder(orderID string) (bool, error)      { return db.CompleteOrder(orderID) }
func (OrderStore) UpdateOrderTariff(orderID string, tariffID uint, paymentType string) (bool, error) {
	return db.UpdateOrderTariff(orderID, tariffID, paymentType)
}
func (OrderStore) CreateExternalPendingOrder(orderID string, userID uint, tariffID uint, paymentType string) error {
	return db.CreateExternalPendingOrder(orderID, userID, tariffID, paymentType)
}
func (OrderStore) AttachKeyToOrder(orderID string, vpnKeyID uint) error {
	return db.AttachKeyToOrder(orderID, vpnKeyID)
}
func (OrderStore) ExtendVPNKey(keyID uint, days int) (bool, error) { return db.ExtendVPNKey(keyID, days) }
func (OrderStore) CreateDraftKey(userID, tariffID uint, days int) (uint, error) {
	return db.CreateDraftKey(userID, tariffID, days)
}
func (OrderStore) GetTariffByID(id uint) (*db.Tariff, error) { return db.GetTariffByID(id) }
func (OrderStore) GetTariffByExternalID(externalID int) (*db.Tariff, error) {
	return db.GetTariffByExternalID(externalID)
}

// Ошибки обработки платежа. Пользователю показывается общий текст,
// операторам — конкретная причина в логах.
var (
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrSecretNotConfigured = errors.New("crypto secret key is not configured")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderExpired        = errors.New("order expired")
	ErrTariffUnresolved    = errors.New("tariff cannot be resolved")
)

type PaymentOutcome int

const (
	// OutcomeAlreadyProcessed — повторная доставка уведомления, не ошибка
	OutcomeAlreadyProcessed PaymentOutcome = iota
	// OutcomeRenewed — существующий ключ продлён
	OutcomeRenewed
	// OutcomeAwaitingServer — черновик создан, нужен выбор сервера
	OutcomeAwaitingServer
	// OutcomeProvisionFailed — оплата принята, но ключ не продлён/не создан.
	// Заказ остаётся оплаченным, разбор ручной.
	OutcomeProvisionFailed
)

// PaymentResult — итог успешной (для плательщика) обработки платежа
type PaymentResult struct {
	Outcome PaymentOutcome
	Order   *db.Payment
	Days    int
	Message string
}

// BillingConfig — явная конфигурация движка. Движок не читает
// глобальных настроек: всё, что ему нужно, передаётся при создании.
type BillingConfig struct {
	CryptoSecret    string
	DefaultTariffID uint // тариф для заказов, у которых тариф так и не определился
}

// Billing — движок сверки платежей. Оба платёжных канала (Stars и
// криптопроцессинг) сходятся в finishOrder: проверка дубликата,
// условный перевод в paid и продление либо создание черновика.
type Billing struct {
	mu    sync.RWMutex
	cfg   BillingConfig
	store BillingStore
}

func NewBilling(cfg BillingConfig, store BillingStore) *Billing {
	return &Billing{cfg: cfg, store: store}
}

// SetCryptoSecret обновляет секрет на лету (меняется из админки)
func (b *Billing) SetCryptoSecret(secret string) {
	b.mu.Lock()
	b.cfg.CryptoSecret = secret
	b.mu.Unlock()
}

func (b *Billing) cryptoSecret() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.CryptoSecret
}

// ProcessStarsPayment обрабатывает подтверждённый платёж Telegram Stars.
// Payload инвойса: "renew:<order_id>" для продления или просто "<order_id>"
// для нового ключа.
func (b *Billing) ProcessStarsPayment(payload string) (*PaymentResult, error) {
	orderID := strings.TrimPrefix(payload, "renew:")

	paid, err := b.store.IsOrderAlreadyPaid(orderID)
	if err != nil {
		return nil, err
	}
	if paid {
		return b.alreadyProcessed(orderID)
	}

	order, err := b.store.FindOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		// Деньги получены, а заказа нет — след платежа терять нельзя
		logger.Error("stars payment for unknown order", zap.String("order_id", orderID))
		logger.NotifyAdmin("Оплата Stars без заказа: " + orderID)
		return nil, ErrOrderNotFound
	}
	return b.finishOrder(order)
}

// ProcessCryptoPayment обрабатывает callback криптопроцессинга.
// Подпись проверяется до любых обращений к заказам; внутренние order_id
// обязаны существовать, внешние могут быть созданы прямо здесь.
func (b *Billing) ProcessCryptoPayment(startParam string, userID uint) (*PaymentResult, error) {
	cb, err := ParseCryptoCallback(startParam)
	if err != nil {
		return nil, err
	}

	secret := b.cryptoSecret()
	if secret == "" {
		logger.Error("crypto secret key is not configured")
		logger.NotifyAdmin("Не настроен секретный ключ криптопроцессинга!")
		return nil, ErrSecretNotConfigured
	}
	if !VerifyCryptoSignature(cb.DataPart, cb.Signature, secret) {
		logger.Warn("crypto callback signature mismatch", zap.String("order_id", cb.OrderID))
		return nil, ErrInvalidSignature
	}

	paid, err := b.store.IsOrderAlreadyPaid(cb.OrderID)
	if err != nil {
		return nil, err
	}
	if paid {
		return b.alreadyProcessed(cb.OrderID)
	}

	order, err := b.store.FindOrder(cb.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if db.IsInternalOrderID(cb.OrderID) {
			// Внутренний id, которого нет в базе, не создаётся заново никогда
			logger.Warn("crypto callback for unknown internal order", zap.String("order_id", cb.OrderID))
			return nil, ErrOrderNotFound
		}
		order, err = b.synthesizeExternalOrder(cb, userID)
		if err != nil {
			return nil, err
		}
	}

	// Просроченный заказ отклоняется до обновления снимка:
	// отказ не оставляет следов в заказе
	if order.Status == db.OrderStatusExpired {
		return nil, ErrOrderExpired
	}

	// Плательщик мог выбрать тариф в интерфейсе процессинга — тогда
	// снимок тарифа в заказе обновляется до завершения
	if cb.TariffExternalID != 0 {
		if err := b.applyCallbackTariff(order, cb.TariffExternalID); err != nil {
			logger.Error("failed to apply callback tariff",
				zap.String("order_id", order.OrderID), zap.Error(err))
		}
	}
	return b.finishOrder(order)
}

// synthesizeExternalOrder создаёт заказ для внешнего order_id, увиденного
// впервые. Без разрешимого тарифа заказ не создаётся: цена неизвестна.
func (b *Billing) synthesizeExternalOrder(cb *CryptoCallback, userID uint) (*db.Payment, error) {
	if cb.TariffExternalID == 0 {
		logger.Warn("external order without tariff", zap.String("order_id", cb.OrderID))
		return nil, ErrTariffUnresolved
	}
	tariff, err := b.store.GetTariffByExternalID(cb.TariffExternalID)
	if err != nil {
		return nil, err
	}
	if tariff == nil {
		logger.Warn("external order tariff unknown",
			zap.String("order_id", cb.OrderID), zap.Int("tariff", cb.TariffExternalID))
		return nil, ErrTariffUnresolved
	}
	if err := b.store.CreateExternalPendingOrder(cb.OrderID, userID, tariff.ID, db.PaymentTypeCrypto); err != nil {
		return nil, err
	}
	order, err := b.store.FindOrder(cb.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("external order %s vanished after create", cb.OrderID)
	}
	return order, nil
}

func (b *Billing) applyCallbackTariff(order *db.Payment, tariffExternalID int) error {
	tariff, err := b.store.GetTariffByExternalID(tariffExternalID)
	if err != nil {
		return err
	}
	if tariff == nil {
		return nil // незнакомый номер тарифа: оставляем снимок как есть
	}
	if order.TariffID != nil && *order.TariffID == tariff.ID {
		return nil
	}
	if _, err := b.store.UpdateOrderTariff(order.OrderID, tariff.ID, db.PaymentTypeCrypto); err != nil {
		return err
	}
	order.TariffID = &tariff.ID
	order.AmountCents = tariff.PriceCents
	order.AmountStars = tariff.PriceStars
	order.PeriodDays = tariff.DurationDays
	order.PaymentType = db.PaymentTypeCrypto
	return nil
}

// finishOrder — общий хвост обоих платёжных каналов: дубликат, условный
// перевод в paid, затем продление либо черновик нового ключа. После того
// как заказ стал paid, никакая ошибка провижининга его не откатывает.
func (b *Billing) finishOrder(order *db.Payment) (*PaymentResult, error) {
	if order.Status == db.OrderStatusExpired {
		return nil, ErrOrderExpired
	}

	ok, err := b.store.CompleteOrder(order.OrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Условный UPDATE не нашёл pending-строку: либо заказ уже оплачен
		// параллельной доставкой, либо его не существует
		paid, err := b.store.IsOrderAlreadyPaid(order.OrderID)
		if err != nil {
			return nil, err
		}
		if paid {
			return b.alreadyProcessed(order.OrderID)
		}
		return nil, fmt.Errorf("order %s cannot be completed", order.OrderID)
	}
	order.Status = db.OrderStatusPaid

	days, tariffID, err := b.resolvePeriod(order)
	if err != nil {
		logger.Error("paid order has no resolvable period",
			zap.String("order_id", order.OrderID), zap.Error(err))
		logger.NotifyAdmin("Оплачен заказ без тарифа: " + order.OrderID)
		return &PaymentResult{
			Outcome: OutcomeProvisionFailed,
			Order:   order,
			Message: msgProvisionFailed,
		}, nil
	}

	if order.VPNKeyID != nil {
		extended, err := b.store.ExtendVPNKey(*order.VPNKeyID, days)
		if err != nil || !extended {
			logger.Error("key extension failed after payment",
				zap.String("order_id", order.OrderID),
				zap.Uint("key_id", *order.VPNKeyID), zap.Error(err))
			logger.NotifyAdmin(fmt.Sprintf("Не удалось продлить ключ %d после оплаты %s", *order.VPNKeyID, order.OrderID))
			return &PaymentResult{
				Outcome: OutcomeProvisionFailed,
				Order:   order,
				Days:    days,
				Message: msgProvisionFailed,
			}, nil
		}
		return &PaymentResult{
			Outcome: OutcomeRenewed,
			Order:   order,
			Days:    days,
			Message: fmt.Sprintf("✅ Оплата прошла успешно!\n\nВаш ключ продлён на %d дн.", days),
		}, nil
	}

	keyID, err := b.store.CreateDraftKey(order.UserID, tariffID, days)
	if err != nil {
		logger.Error("draft key creation failed after payment",
			zap.String("order_id", order.OrderID), zap.Error(err))
		logger.NotifyAdmin("Не удалось создать ключ после оплаты " + order.OrderID)
		return &PaymentResult{
			Outcome: OutcomeProvisionFailed,
			Order:   order,
			Days:    days,
			Message: msgProvisionFailed,
		}, nil
	}
	if err := b.store.AttachKeyToOrder(order.OrderID, keyID); err != nil {
		logger.Error("failed to attach key to order",
			zap.String("order_id", order.OrderID), zap.Uint("key_id", keyID), zap.Error(err))
	}
	order.VPNKeyID = &keyID
	return &PaymentResult{
		Outcome: OutcomeAwaitingServer,
		Order:   order,
		Days:    days,
		Message: "🎉 Оплата прошла успешно!\n\n🔑 Теперь выберите сервер для вашего нового ключа.",
	}, nil
}

// resolvePeriod возвращает срок и тариф заказа. Снимок в заказе главнее
// живого тарифа; каталог используется, только если снимок пуст.
func (b *Billing) resolvePeriod(order *db.Payment) (days int, tariffID uint, err error) {
	if order.TariffID != nil {
		tariffID = *order.TariffID
	}
	if order.PeriodDays > 0 {
		if tariffID == 0 {
			tariffID = b.cfg.DefaultTariffID
		}
		return order.PeriodDays, tariffID, nil
	}
	if tariffID == 0 {
		tariffID = b.cfg.DefaultTariffID
	}
	if tariffID == 0 {
		return 0, 0, ErrTariffUnresolved
	}
	tariff, err := b.store.GetTariffByID(tariffID)
	if err != nil {
		return 0, 0, err
	}
	if tariff == nil || tariff.DurationDays <= 0 {
		return 0, 0, ErrTariffUnresolved
	}
	return tariff.DurationDays, tariff.ID, nil
}

func (b *Billing) alreadyProcessed(orderID string) (*PaymentResult, error) {
	order, err := b.store.FindOrder(orderID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		Outcome: OutcomeAlreadyProcessed,
		Order:   order,
		Message: "✅ Этот платёж уже был обработан ранее!",
	}, nil
}

const msgProvisionFailed = "✅ Оплата принята!\n\n⚠️ Возникла проблема с настройкой ключа. Мы разберёмся и свяжемся с вами."
