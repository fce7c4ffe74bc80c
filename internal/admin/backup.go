package admin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plushkinv/YadrenoVPN/config"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// BackupDatabase создает дамп БД Postgres в указанный файл
func BackupDatabase(filename string, dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "pg_dump", dsn, "-Fc", "-f", filename)
	return cmd.Run()
}

// AutoBackupDatabase делает дамп и отправляет его админам файлом
func AutoBackupDatabase(bot *tgbotapi.BotAPI, dsn string) {
	defer logger.NotifyOnPanic("AutoBackupDatabase")

	filename := filepath.Join(os.TempDir(), fmt.Sprintf("vpnbot_%s.dump", time.Now().Format("20060102")))
	if err := BackupDatabase(filename, dsn); err != nil {
		logger.NotifyAdmin("Ошибка автобэкапа БД: " + err.Error())
		return
	}
	defer os.Remove(filename)
	for _, id := range config.AppCfg.AdminIDs {
		doc := tgbotapi.NewDocument(id, tgbotapi.FilePath(filename))
		doc.Caption = "Автоматический бэкап БД"
		bot.Send(doc)
	}
}

func handleBackup(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "⏳ Делаю бэкап..."))
	AutoBackupDatabase(bot, config.AppCfg.DatabaseURL)
}
