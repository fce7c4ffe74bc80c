package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	BotToken       string
	AdminIDs       []int64
	DatabaseURL    string
	DefaultLimitGB int // лимит трафика для новых ключей, 0 = без лимита
	DefaultLimitIP int
}

var AppCfg AppConfig

func LoadConfig() {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, relying on environment variables")
	}

	AppCfg.BotToken = os.Getenv("BOT_TOKEN")
	AppCfg.AdminIDs = parseAdminIDs(os.Getenv("ADMIN_TELEGRAM_IDS"))
	AppCfg.DatabaseURL = os.Getenv("DATABASE_URL")
	AppCfg.DefaultLimitGB = envInt("DEFAULT_LIMIT_GB", 0)
	AppCfg.DefaultLimitIP = envInt("DEFAULT_LIMIT_IP", 1)

	if AppCfg.BotToken == "" || len(AppCfg.AdminIDs) == 0 || AppCfg.DatabaseURL == "" {
		log.Fatal("Critical environment variables are missing. Bot will exit.")
	}
}

// IsAdmin проверяет, входит ли Telegram ID в список админов
func (c *AppConfig) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("Invalid admin id %q ignored", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
