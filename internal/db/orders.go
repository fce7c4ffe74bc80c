package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plushkinv/YadrenoVPN/internal/base62"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// InternalOrderPrefix отличает наши order_id от внешних ID криптопроцессинга.
// Сгенерированный внутри id всегда начинается с "00", внешние — нет.
const InternalOrderPrefix = "00"

func IsInternalOrderID(orderID string) bool {
	return strings.HasPrefix(orderID, InternalOrderPrefix)
}

// CreatePendingOrder создаёт pending-заказ и возвращает (внутренний id, order_id).
//
// Order_id выводится из автоинкрементного id записи в base62, поэтому он
// короткий и уникальный без отдельного sequence. Вставка двухшаговая:
// сначала запись с временным order_id, затем запись итогового id в той же
// транзакции. Если тариф известен, суммы и срок снимаются с него сразу;
// для крипты тариф может быть выбран позже, тогда пишутся нули.
func CreatePendingOrder(userID uint, tariffID *uint, paymentType string, vpnKeyID *uint) (uint, string, error) {
	var tariff *Tariff
	if tariffID != nil {
		t, err := GetTariffByID(*tariffID)
		if err != nil {
			return 0, "", err
		}
		if t == nil {
			return 0, "", fmt.Errorf("tariff %d not found", *tariffID)
		}
		tariff = t
	}

	pay := Payment{
		OrderID:     "tmp-" + uuid.NewString(),
		UserID:      userID,
		TariffID:    tariffID,
		PaymentType: paymentType,
		VPNKeyID:    vpnKeyID,
		Status:      OrderStatusPending,
	}
	if tariff != nil {
		pay.AmountCents = tariff.PriceCents
		pay.AmountStars = tariff.PriceStars
		pay.PeriodDays = tariff.DurationDays
	}

	var orderID string
	err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pay).Error; err != nil {
			return err
		}
		orderID = InternalOrderPrefix + base62.EncodeUint(uint64(pay.ID))
		return tx.Model(&Payment{}).Where("id = ?", pay.ID).Update("order_id", orderID).Error
	})
	if err != nil {
		return 0, "", err
	}
	logger.Info("pending order created",
		zap.String("order_id", orderID), zap.Uint("user_id", userID), zap.String("type", paymentType))
	return pay.ID, orderID, nil
}

// CreateExternalPendingOrder создаёт заказ с order_id, который назначил
// криптопроцессинг. Используется, когда оплата пришла раньше, чем бот
// успел создать свой заказ. Тариф обязателен: заказ с неизвестной ценой
// не создаётся.
func CreateExternalPendingOrder(orderID string, userID uint, tariffID uint, paymentType string) error {
	if IsInternalOrderID(orderID) {
		return fmt.Errorf("order id %s belongs to the internal namespace", orderID)
	}
	tariff, err := GetTariffByID(tariffID)
	if err != nil {
		return err
	}
	if tariff == nil {
		return fmt.Errorf("tariff %d not found", tariffID)
	}
	pay := Payment{
		OrderID:     orderID,
		UserID:      userID,
		TariffID:    &tariffID,
		PaymentType: paymentType,
		AmountCents: tariff.PriceCents,
		AmountStars: tariff.PriceStars,
		PeriodDays:  tariff.DurationDays,
		Status:      OrderStatusPending,
	}
	if err := DB.Create(&pay).Error; err != nil {
		return err
	}
	logger.Info("external pending order created",
		zap.String("order_id", orderID), zap.Uint("user_id", userID))
	return nil
}

// FindOrder возвращает заказ по order_id или nil, если его нет
func FindOrder(orderID string) (*Payment, error) {
	var pay Payment
	err := DB.Where("order_id = ?", orderID).First(&pay).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pay, nil
}

// IsOrderAlreadyPaid — первая проверка идемпотентности у всех обработчиков оплат
func IsOrderAlreadyPaid(orderID string) (bool, error) {
	var count int64
	err := DB.Model(&Payment{}).
		Where("order_id = ? AND status = ?", orderID, OrderStatusPaid).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CompleteOrder переводит заказ pending -> paid.
//
// Условный UPDATE по текущему статусу — единственная защита от двойного
// зачисления: при повторной доставке уведомления второй вызов не найдёт
// строку в статусе pending и вернёт false. false также означает
// неизвестный заказ, вызывающая сторона различает эти случаи сама.
func CompleteOrder(orderID string) (bool, error) {
	res := DB.Model(&Payment{}).
		Where("order_id = ? AND status = ?", orderID, OrderStatusPending).
		Updates(map[string]interface{}{
			"status":  OrderStatusPaid,
			"paid_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		logger.Info("order completed", zap.String("order_id", orderID))
	}
	return res.RowsAffected > 0, nil
}

// UpdateOrderTariff меняет тариф заказа и заново снимает с него суммы и срок.
// Криптопроцессинг позволяет выбрать тариф в своём интерфейсе уже после
// создания заказа. paymentType пустой — тип оплаты не трогаем.
func UpdateOrderTariff(orderID string, tariffID uint, paymentType string) (bool, error) {
	tariff, err := GetTariffByID(tariffID)
	if err != nil {
		return false, err
	}
	if tariff == nil {
		return false, fmt.Errorf("tariff %d not found", tariffID)
	}
	updates := map[string]interface{}{
		"tariff_id":    tariffID,
		"amount_cents": tariff.PriceCents,
		"amount_stars": tariff.PriceStars,
		"period_days":  tariff.DurationDays,
	}
	if paymentType != "" {
		updates["payment_type"] = paymentType
	}
	res := DB.Model(&Payment{}).Where("order_id = ?", orderID).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		logger.Info("order tariff updated",
			zap.String("order_id", orderID), zap.Uint("tariff_id", tariffID))
	}
	return res.RowsAffected > 0, nil
}

// AttachKeyToOrder привязывает созданный ключ к заказу. Связь односторонняя:
// повторная запись того же значения безвредна, другой ключ сюда не пишут.
func AttachKeyToOrder(orderID string, vpnKeyID uint) error {
	return DB.Model(&Payment{}).Where("order_id = ?", orderID).
		Update("vpn_key_id", vpnKeyID).Error
}

// ExpireStaleOrders помечает зависшие pending-заказы как истёкшие.
// Из expired переходов больше нет, оплатить такой заказ нельзя.
func ExpireStaleOrders(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := DB.Model(&Payment{}).
		Where("status = ? AND created_at < ?", OrderStatusPending, cutoff).
		Update("status", OrderStatusExpired)
	return res.RowsAffected, res.Error
}
