package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

func tariffLabel(t db.Tariff) string {
	return fmt.Sprintf("%s — %d дн. / %d ⭐", t.Name, t.DurationDays, t.PriceStars)
}

// TariffKeyboard — список тарифов; callbackPrefix определяет сценарий
// (покупка нового ключа или продление конкретного)
func TariffKeyboard(tariffs []db.Tariff, callbackPrefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range tariffs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tariffLabel(t), callbackPrefix+strconv.Itoa(int(t.ID))),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// PayMethodKeyboard — выбор способа оплаты для тарифа
func PayMethodKeyboard(tariffID uint, cryptoEnabled bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Telegram Stars", fmt.Sprintf("pay_stars:%d", tariffID)),
		),
	}
	if cryptoEnabled {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🪙 Криптовалюта", fmt.Sprintf("pay_crypto:%d", tariffID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ServerKeyboard — выбор сервера для нового ключа; order_id едет в callback,
// состояние между шагами нигде больше не хранится
func ServerKeyboard(servers []db.Server, orderID string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range servers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🖥️ "+s.Name, fmt.Sprintf("new_key_server:%s:%d", orderID, s.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// InboundKeyboard — выбор протокола на выбранном сервере
func InboundKeyboard(inbounds []services.Inbound, orderID string, serverID uint) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ib := range inbounds {
		label := fmt.Sprintf("%s (%s)", ib.Remark, ib.Protocol)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("new_key_inbound:%s:%d:%d", orderID, serverID, ib.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// KeyListKeyboard — ключи пользователя с кнопкой продления
func KeyListKeyboard(keys []db.VPNKey) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, k := range keys {
		label := fmt.Sprintf("🔑 #%d до %s", k.ID, k.ExpiresAt.Format("02.01.2006"))
		if k.IsDraft() {
			label = fmt.Sprintf("📝 #%d (не настроен)", k.ID)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("renew_key:%d", k.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
