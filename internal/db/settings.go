package db

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ключи настроек в таблице settings
const (
	SettingCryptoSecretKey  = "crypto_secret_key"
	SettingCryptoItemURL    = "crypto_item_url"
	SettingNotificationDays = "notification_days"
	SettingNotificationText = "notification_text"
)

// GetSetting возвращает значение настройки или пустую строку, если её нет
func GetSetting(key string) (string, error) {
	var s Setting
	err := DB.First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	s := Setting{Key: key, Value: value}
	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&s).Error
}

// IsCryptoConfigured — крипто-оплата доступна, когда задана ссылка на товар
func IsCryptoConfigured() bool {
	url, err := GetSetting(SettingCryptoItemURL)
	return err == nil && url != ""
}
