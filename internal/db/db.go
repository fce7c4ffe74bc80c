package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(dsn string) {
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	DB = db
	db.AutoMigrate(&User{}, &Tariff{}, &Server{}, &VPNKey{}, &Payment{}, &Setting{}, &NotificationLog{})
	seedDefaults()
}

// seedDefaults добавляет настройки по умолчанию, не перетирая существующие
func seedDefaults() {
	defaults := []Setting{
		{Key: SettingNotificationDays, Value: "3"},
		{Key: SettingNotificationText, Value: "⚠️ Ваш VPN-ключ истекает через {days} дн. Продлите подписку, чтобы не потерять доступ."},
	}
	for _, s := range defaults {
		DB.Where(Setting{Key: s.Key}).FirstOrCreate(&s)
	}
}
