package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plushkinv/YadrenoVPN/internal/services"
)

// billing задаётся из main до старта полинга
var billing *services.Billing

func Init(b *services.Billing) {
	billing = b
}

// StartBotWithInstance запускает Telegram-бота с переданным экземпляром
func StartBotWithInstance(bot *tgbotapi.BotAPI) {
	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		HandleUpdate(bot, update)
	}
}
