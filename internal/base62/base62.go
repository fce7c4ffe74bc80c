// Package base62 кодирует числа и байты в алфавит 0-9A-Za-z.
// Формат используется криптопроцессингом Ya.Seller: короткие order_id
// и подписи callback без символов, требующих URL-экранирования.
package base62

import "math/big"

const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// EncodeUint кодирует число в base62 строку без ведущих нулей
func EncodeUint(n uint64) string {
	if n == 0 {
		return string(Alphabet[0])
	}
	var buf [11]byte // достаточно для uint64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// EncodeBytes трактует данные как big-endian целое и кодирует его в base62.
// Пустой вход даёт пустую строку.
func EncodeBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	num := new(big.Int).SetBytes(data)
	if num.Sign() == 0 {
		return string(Alphabet[0])
	}
	base := big.NewInt(62)
	rem := new(big.Int)
	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, rem)
		out = append(out, Alphabet[rem.Int64()])
	}
	// разворот: цифры вычислены от младшей к старшей
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
