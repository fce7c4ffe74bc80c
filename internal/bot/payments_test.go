package bot

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/services"
)

func TestParseCallbackIDs(t *testing.T) {
	tests := []struct {
		data   string
		prefix string
		want   []uint
	}{
		{"pay_stars:5", "pay_stars:", []uint{5}},
		{"new_key_inbound:7:2", "new_key_inbound:", []uint{7, 2}},
		{"pay_stars:abc", "pay_stars:", nil},
		{"pay_stars:", "pay_stars:", nil},
		{"pay_stars:5:x", "pay_stars:", nil},
	}
	for _, tt := range tests {
		got := parseCallbackIDs(tt.data, tt.prefix)
		if len(got) != len(tt.want) {
			t.Errorf("parseCallbackIDs(%q) = %v, want %v", tt.data, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseCallbackIDs(%q) = %v, want %v", tt.data, got, tt.want)
			}
		}
	}
}

func TestParseOrderCallback(t *testing.T) {
	orderID, ids, ok := parseOrderCallback("new_key_server:00A1:3", "new_key_server:", 1)
	if !ok || orderID != "00A1" || len(ids) != 1 || ids[0] != 3 {
		t.Errorf("got (%q, %v, %v)", orderID, ids, ok)
	}

	orderID, ids, ok = parseOrderCallback("new_key_inbound:00A1:3:7", "new_key_inbound:", 2)
	if !ok || orderID != "00A1" || len(ids) != 2 || ids[1] != 7 {
		t.Errorf("got (%q, %v, %v)", orderID, ids, ok)
	}

	bad := []struct {
		data    string
		prefix  string
		wantIDs int
	}{
		{"new_key_server:00A1", "new_key_server:", 1},  // нет id сервера
		{"new_key_server::3", "new_key_server:", 1},    // пустой order_id
		{"new_key_server:00A1:x", "new_key_server:", 1}, // не число
		{"new_key_server:00A1:3", "new_key_server:", 2}, // мало id
	}
	for _, tt := range bad {
		if _, _, ok := parseOrderCallback(tt.data, tt.prefix, tt.wantIDs); ok {
			t.Errorf("parseOrderCallback(%q) accepted", tt.data)
		}
	}
}

func TestPaymentErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{services.ErrMalformedCallback, msgBadPayment},
		{services.ErrInvalidSignature, msgBadPayment},
		{services.ErrTariffUnresolved, msgBadPayment},
		{services.ErrSecretNotConfigured, msgConfigError},
		{services.ErrOrderNotFound, msgOrderNotFound},
		{services.ErrOrderExpired, msgOrderExpired},
		{errors.New("db down"), msgGenericError},
	}
	for _, tt := range tests {
		if got := paymentErrorText(tt.err); got != tt.want {
			t.Errorf("paymentErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// --- Инфраструктура для сценарных тестов: sqlmock вместо БД и
// фейковый Telegram API, записывающий вызовы ---

func newMockDB(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	old := db.DB
	db.DB = gdb
	return mock, func() {
		db.DB = old
		sqlDB.Close()
	}
}

type tgCall struct {
	method string
	params url.Values
}

type tgServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls []tgCall
}

func newTGServer() *tgServer {
	s := &tgServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		s.mu.Lock()
		s.calls = append(s.calls, tgCall{method: path.Base(r.URL.Path), params: r.Form})
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": map[string]interface{}{}})
	}))
	return s
}

// lastCall возвращает параметры последнего вызова метода API или nil
func (s *tgServer) lastCall(method string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].method == method {
			return s.calls[i].params
		}
	}
	return nil
}

func testBotAPI(srv *tgServer) *tgbotapi.BotAPI {
	b := &tgbotapi.BotAPI{Client: srv.Client(), Buffer: 100}
	b.SetAPIEndpoint(srv.URL + "/bot%s/%s")
	return b
}

func testCallback(telegramID int64) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: telegramID, UserName: "tester"},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: telegramID}},
	}
}

func vpnKeyRow(id, userID uint, tariffID uint, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "server_id", "tariff_id", "panel_inbound_id",
		"client_uuid", "panel_email", "custom_name", "expires_at", "created_at"}).
		AddRow(id, userID, nil, tariffID, nil, nil, nil, nil, expiresAt, time.Now())
}

func userRow(id uint, telegramID int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "telegram_id", "username", "is_banned", "created_at"}).
		AddRow(id, telegramID, "tester", false, time.Now())
}

func tariffRows(id uint, days, cents, stars int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "duration_days", "price_cents", "price_stars",
		"external_id", "display_order", "is_active"}).
		AddRow(id, "30 дней", days, cents, stars, nil, 0, true)
}

// Заказ на продление создаётся на владельца ключа, уже проверенного
// в userKey; повторного похода за пользователем в этом пути нет
func TestStarsRenewalOrderForKeyOwner(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()
	srv := newTGServer()
	defer srv.Close()
	botapi := testBotAPI(srv)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vpn_keys"`)).
		WillReturnRows(vpnKeyRow(5, 1, 3, time.Now().AddDate(0, 0, 10)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WithArgs(int64(111), 1).
		WillReturnRows(userRow(1, 111))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tariffs"`)).
		WillReturnRows(tariffRows(3, 30, 900, 150))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tariffs"`)).
		WillReturnRows(tariffRows(3, 30, 900, 150))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payments"`)).
		WithArgs(sqlmock.AnyArg(), 1, 3, db.PaymentTypeStars, 5, 900, 150, 30, db.OrderStatusPending, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "order_id"=`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	StartStarsRenewal(botapi, testCallback(111), 5, 3)

	assert.NoError(t, mock.ExpectationsWereMet())
	invoice := srv.lastCall("sendInvoice")
	require.NotNil(t, invoice, "invoice was not sent")
	assert.Equal(t, "renew:009", invoice.Get("payload"))
}

// Сбой самого первого запроса (ключ не достался) — обычный отказ,
// а не паника, роняющая полинг
func TestStarsRenewalStoreFailureIsGraceful(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()
	srv := newTGServer()
	defer srv.Close()
	botapi := testBotAPI(srv)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vpn_keys"`)).
		WillReturnError(errors.New("connection reset"))

	StartStarsRenewal(botapi, testCallback(111), 5, 3)

	assert.NoError(t, mock.ExpectationsWereMet())
	if srv.lastCall("sendInvoice") != nil {
		t.Error("invoice sent despite store failure")
	}
	require.NotNil(t, srv.lastCall("answerCallbackQuery"))
}

// Чужой заказ настроить нельзя: order_id приходит из callback data
// и легко перебирается
func TestFinalizeNewKeyRejectsForeignOrder(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()
	srv := newTGServer()
	defer srv.Close()
	botapi := testBotAPI(srv)

	paymentCols := []string{"id", "order_id", "user_id", "tariff_id", "payment_type", "vpn_key_id",
		"amount_cents", "amount_stars", "period_days", "status", "paid_at", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(9, "00A1", 2, 3, db.PaymentTypeStars, 7, 900, 150, 30, db.OrderStatusPaid, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WithArgs(int64(111), 1).
		WillReturnRows(userRow(1, 111))

	finalizeNewKey(botapi, testCallback(111), "00A1", 4, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
	cb := srv.lastCall("answerCallbackQuery")
	require.NotNil(t, cb)
	assert.Equal(t, "Это не ваш заказ", cb.Get("text"))
}
