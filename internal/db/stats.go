package db

import "time"

// --- Админские методы для статистики и списков ---

func CountUsers() int {
	var count int64
	DB.Model(&User{}).Count(&count)
	return int(count)
}

func CountActiveKeys() int {
	var count int64
	DB.Model(&VPNKey{}).Where("server_id IS NOT NULL AND expires_at > NOW()").Count(&count)
	return int(count)
}

func CountDraftKeys() int {
	var count int64
	DB.Model(&VPNKey{}).Where("server_id IS NULL").Count(&count)
	return int(count)
}

// SumPaidStars суммирует оплаченные звёзды за период
func SumPaidStars(from, to time.Time) int64 {
	var sum int64
	DB.Model(&Payment{}).
		Where("status = ? AND paid_at >= ? AND paid_at <= ?", OrderStatusPaid, from, to).
		Select("COALESCE(SUM(amount_stars), 0)").Scan(&sum)
	return sum
}

// SumPaidCents суммирует оплаченную сумму в центах за период
func SumPaidCents(from, to time.Time) int64 {
	var sum int64
	DB.Model(&Payment{}).
		Where("status = ? AND paid_at >= ? AND paid_at <= ?", OrderStatusPaid, from, to).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&sum)
	return sum
}

func CountPaidOrders(from, to time.Time) int {
	var count int64
	DB.Model(&Payment{}).
		Where("status = ? AND paid_at >= ? AND paid_at <= ?", OrderStatusPaid, from, to).
		Count(&count)
	return int(count)
}

func GetRecentPayments(limit int) []Payment {
	var pays []Payment
	DB.Order("created_at desc").Limit(limit).Find(&pays)
	return pays
}

func GetActiveServers() ([]Server, error) {
	var servers []Server
	err := DB.Where("is_active = true").Order("id").Find(&servers).Error
	return servers, err
}

func GetServerByID(id uint) (*Server, error) {
	var srv Server
	if err := DB.First(&srv, id).Error; err != nil {
		return nil, err
	}
	return &srv, nil
}
