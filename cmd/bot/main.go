package main

import (
	"io"
	"log"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"

	"github.com/plushkinv/YadrenoVPN/config"
	"github.com/plushkinv/YadrenoVPN/internal/admin"
	"github.com/plushkinv/YadrenoVPN/internal/bot"
	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

func main() {
	config.LoadConfig()
	db.InitDB(config.AppCfg.DatabaseURL)

	botapi, err := tgbotapi.NewBotAPI(config.AppCfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	logger.InitNotifier(botapi, config.AppCfg.AdminIDs)

	// --- Логирование в файл и консоль ---
	logFile, err := os.OpenFile("bot.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Не удалось открыть файл логов: %v", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	// Движок биллинга собирается явно: секрет и тариф по умолчанию
	// передаются при создании, а не читаются из глобального состояния
	secret, err := db.GetSetting(db.SettingCryptoSecretKey)
	if err != nil {
		log.Fatalf("Не удалось прочитать настройки: %v", err)
	}
	billing := services.NewBilling(services.BillingConfig{
		CryptoSecret:    secret,
		DefaultTariffID: defaultTariffID(),
	}, services.OrderStore{})
	bot.Init(billing)
	admin.Init(billing)

	c := cron.New()
	// Доступность панелей
	c.AddFunc("@every 5m", services.UpdateAllServerStatuses)
	// Зависшие pending-заказы переводятся в expired
	c.AddFunc("@every 30m", services.ExpirePendingOrders)
	// Уведомления о скором окончании ключей (раз в сутки в 10:00)
	c.AddFunc("0 10 * * *", func() {
		services.NotifyExpiringKeys(botapi)
	})
	// Сводка админам (раз в сутки в 09:00)
	c.AddFunc("0 9 * * *", func() {
		services.SendDailyDigest(botapi, config.AppCfg.AdminIDs)
	})
	// Автоматический бэкап БД раз в сутки
	c.AddFunc("0 3 * * *", func() {
		admin.AutoBackupDatabase(botapi, config.AppCfg.DatabaseURL)
	})
	c.Start()

	// Запуск Telegram-бота (polling)
	bot.StartBotWithInstance(botapi)
}

// defaultTariffID — тариф для заказов, у которых тариф так и не
// разрешился; задаётся через DEFAULT_TARIFF_ID, 0 = нет такого
func defaultTariffID() uint {
	v := os.Getenv("DEFAULT_TARIFF_ID")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}
