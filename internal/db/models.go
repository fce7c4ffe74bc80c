package db

import "time"

type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	Username   string
	IsBanned   bool `gorm:"default:false"`
	CreatedAt  time.Time
}

type Tariff struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	DurationDays int
	PriceCents   int
	PriceStars   int
	ExternalID   *int // номер тарифа в криптопроцессинге (1-9)
	DisplayOrder int  `gorm:"default:0"`
	IsActive     bool `gorm:"default:true"`
}

// Server — панель 3X-UI, на которой выдаются ключи
type Server struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Host        string
	Port        int
	WebBasePath string
	Login       string
	Password    string
	IsActive    bool `gorm:"default:true"`
}

// VPNKey — ключ пользователя.
// ServerID == nil означает черновик: оплата прошла, сервер ещё не выбран.
type VPNKey struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"index"`
	ServerID       *uint
	TariffID       uint
	PanelInboundID *int
	ClientUUID     *string
	PanelEmail     *string
	CustomName     *string
	ExpiresAt      time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// Payment — заказ на покупку или продление ключа.
// Суммы и срок — снимок тарифа на момент его выбора, тарифы могут меняться.
type Payment struct {
	ID          uint   `gorm:"primaryKey"`
	OrderID     string `gorm:"uniqueIndex"`
	UserID      uint   `gorm:"index"`
	TariffID    *uint
	PaymentType string
	VPNKeyID    *uint // nil = новый ключ будет создан после оплаты
	AmountCents int
	AmountStars int
	PeriodDays  int
	Status      string `gorm:"default:'pending'"`
	PaidAt      *time.Time
	CreatedAt   time.Time `gorm:"index"`
}

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusExpired = "expired"

	PaymentTypeStars  = "stars"
	PaymentTypeCrypto = "crypto"
)

// Setting — глобальные настройки бота (ключ криптопроцессинга, тексты и т.п.)
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// NotificationLog — отметки об отправленных уведомлениях (не чаще раза в день)
type NotificationLog struct {
	ID       uint   `gorm:"primaryKey"`
	VPNKeyID uint   `gorm:"index:idx_notification_log_unique,unique"`
	SentAt   string `gorm:"index:idx_notification_log_unique,unique"` // дата YYYY-MM-DD
}
