package db

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// KeyConfig — серверная часть выданного ключа. Присутствует целиком
// или отсутствует целиком: черновик без сервера не имеет ни inbound,
// ни uuid, ни email на панели.
type KeyConfig struct {
	ServerID       uint
	PanelInboundID int
	ClientUUID     string
	PanelEmail     string
}

// Provisioned возвращает конфигурацию ключа, если он уже привязан к серверу.
// Для черновика второй результат false.
func (k *VPNKey) Provisioned() (KeyConfig, bool) {
	if k.ServerID == nil || k.PanelInboundID == nil || k.ClientUUID == nil || k.PanelEmail == nil {
		return KeyConfig{}, false
	}
	return KeyConfig{
		ServerID:       *k.ServerID,
		PanelInboundID: *k.PanelInboundID,
		ClientUUID:     *k.ClientUUID,
		PanelEmail:     *k.PanelEmail,
	}, true
}

func (k *VPNKey) IsDraft() bool {
	_, ok := k.Provisioned()
	return !ok
}

// IsExpired вычисляется от expires_at, отдельного статуса у ключа нет
func (k *VPNKey) IsExpired() bool {
	return time.Now().After(k.ExpiresAt)
}

func GetVPNKeyByID(id uint) (*VPNKey, error) {
	var key VPNKey
	err := DB.First(&key, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func GetUserKeys(userID uint) ([]VPNKey, error) {
	var keys []VPNKey
	err := DB.Where("user_id = ?", userID).Order("expires_at desc").Find(&keys).Error
	return keys, err
}

// ExtendVPNKey продлевает ключ на days дней от максимума из текущего
// expires_at и текущего момента. Раннее продление не укорачивает доступ,
// просроченный ключ продлевается от момента оплаты, а не от прошлой даты.
func ExtendVPNKey(keyID uint, days int) (bool, error) {
	res := DB.Model(&VPNKey{}).Where("id = ?", keyID).
		Update("expires_at", gorm.Expr("GREATEST(expires_at, NOW()) + make_interval(days => ?)", days))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		logger.Info("vpn key extended", zap.Uint("key_id", keyID), zap.Int("days", days))
	}
	return res.RowsAffected > 0, nil
}

// CreateDraftKey создаёт черновик ключа сразу после оплаты: срок уже идёт,
// сервер и протокол пользователь выбирает следующим шагом.
func CreateDraftKey(userID, tariffID uint, days int) (uint, error) {
	key := VPNKey{
		UserID:    userID,
		TariffID:  tariffID,
		ExpiresAt: time.Now().AddDate(0, 0, days),
	}
	if err := DB.Create(&key).Error; err != nil {
		return 0, err
	}
	logger.Info("draft key created", zap.Uint("key_id", key.ID), zap.Uint("user_id", userID))
	return key.ID, nil
}

// AttachServerToKey завершает настройку черновика: привязывает сервер,
// inbound и учётные данные клиента на панели
func AttachServerToKey(keyID, serverID uint, inboundID int, clientUUID, panelEmail string) (bool, error) {
	res := DB.Model(&VPNKey{}).Where("id = ?", keyID).Updates(map[string]interface{}{
		"server_id":        serverID,
		"panel_inbound_id": inboundID,
		"client_uuid":      clientUUID,
		"panel_email":      panelEmail,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetExpiringKeys возвращает привязанные к серверу ключи, истекающие в
// ближайшие days дней
func GetExpiringKeys(days int) ([]VPNKey, error) {
	var keys []VPNKey
	now := time.Now()
	soon := now.AddDate(0, 0, days)
	err := DB.Where("server_id IS NOT NULL AND expires_at > ? AND expires_at <= ?", now, soon).
		Find(&keys).Error
	return keys, err
}

// IsNotificationSentToday проверяет отметку в логе уведомлений за сегодня
func IsNotificationSentToday(keyID uint) (bool, error) {
	var count int64
	today := time.Now().Format("2006-01-02")
	err := DB.Model(&NotificationLog{}).
		Where("vpn_key_id = ? AND sent_at = ?", keyID, today).
		Count(&count).Error
	return count > 0, err
}

func LogNotificationSent(keyID uint) error {
	entry := NotificationLog{VPNKeyID: keyID, SentAt: time.Now().Format("2006-01-02")}
	return DB.Create(&entry).Error
}
