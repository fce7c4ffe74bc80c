package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/plushkinv/YadrenoVPN/internal/base62"
)

// Callback криптопроцессинга Ya.Seller приходит как deep link
// /start bill1-ORDER_ID-ITEM_ID-TARIFF-PROMO-PRICE-SIGNATURE.
// Пропущенные поля заменяются прочерком "_".
const (
	CryptoCallbackPrefix = "bill"
	cryptoPlaceholder    = "_"
	minCallbackSegments  = 7
)

var ErrMalformedCallback = errors.New("malformed crypto callback")

// CryptoCallback — разобранный callback криптопроцессинга
type CryptoCallback struct {
	Prefix           string // bill0 или bill1
	OrderID          string
	ItemID           string // ID товара в Ya.Seller
	TariffExternalID int    // номер тарифа, 0 = не указан
	Promo            string // промокод, "" = не указан
	PriceCents       int    // 0 = не указана
	Signature        string
	DataPart         string // всё кроме подписи, вход для проверки
}

// ParseCryptoCallback разбирает параметр start из deep link.
// Формат проверяется до каких-либо обращений к базе: кривой payload
// отбрасывается ещё до проверки подписи.
func ParseCryptoCallback(startParam string) (*CryptoCallback, error) {
	if !strings.HasPrefix(startParam, CryptoCallbackPrefix) {
		return nil, ErrMalformedCallback
	}
	parts := strings.Split(startParam, "-")
	if len(parts) < minCallbackSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrMalformedCallback, len(parts))
	}

	cb := &CryptoCallback{
		Prefix:    parts[0],
		OrderID:   parts[1],
		ItemID:    parts[2],
		Signature: parts[len(parts)-1],
		DataPart:  startParam[:strings.LastIndex(startParam, "-")],
	}
	if parts[4] != cryptoPlaceholder {
		cb.Promo = parts[4]
	}
	if parts[3] != cryptoPlaceholder {
		n, err := strconv.Atoi(parts[3])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad tariff %q", ErrMalformedCallback, parts[3])
		}
		cb.TariffExternalID = n
	}
	if parts[5] != cryptoPlaceholder {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad price %q", ErrMalformedCallback, parts[5])
		}
		cb.PriceCents = n
	}
	return cb, nil
}

// ComputeCryptoSignature считает подпись по алгоритму Ya.Seller:
// Base62(HMAC-SHA256(data_part, secret)[:11])
func ComputeCryptoSignature(dataPart, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(dataPart))
	return base62.EncodeBytes(h.Sum(nil)[:11])
}

// VerifyCryptoSignature сравнивает подпись за константное время.
// Несовпадение — это false, а не ошибка: наружу уходит только общий
// отказ без деталей.
func VerifyCryptoSignature(dataPart, receivedSignature, secret string) bool {
	expected := ComputeCryptoSignature(dataPart, secret)
	return hmac.Equal([]byte(expected), []byte(receivedSignature))
}

// BuildCryptoPaymentURL формирует ссылку на оплату в боте Ya.Seller.
// Формат: t.me/Ya_SellerBot?start=item-{item}-{ref}-{promo}-{invoice}[-{price}].
// Реферальный код и промокод не используются.
func BuildCryptoPaymentURL(itemID, invoiceID string, priceCents int) string {
	parts := []string{"item", itemID, "", "", invoiceID}
	if priceCents > 0 {
		parts = append(parts, strconv.Itoa(priceCents))
	}
	return "https://t.me/Ya_SellerBot?start=" + strings.Join(parts, "-")
}

// ExtractItemIDFromURL достаёт item_id из ссылки на товар в Ya.Seller
func ExtractItemIDFromURL(cryptoItemURL string) string {
	_, startParam, ok := strings.Cut(cryptoItemURL, "?start=")
	if !ok {
		return ""
	}
	parts := strings.Split(startParam, "-")
	if len(parts) >= 2 && parts[0] == "item" {
		return parts[1]
	}
	return ""
}
