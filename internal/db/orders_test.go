package db

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDB подменяет глобальный DB на gorm поверх sqlmock.
// Возвращённый cleanup обязателен: он восстанавливает DB.
func newMockDB(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	old := DB
	DB = gdb
	return mock, func() {
		DB = old
		sqlDB.Close()
	}
}

func tariffRow(id uint, days, cents, stars int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "duration_days", "price_cents", "price_stars", "external_id", "display_order", "is_active"}).
		AddRow(id, "test", days, cents, stars, nil, 0, true)
}

func TestCompleteOrderTransitionsExactlyOnce(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	update := regexp.QuoteMeta(`UPDATE "payments" SET`)

	// Первая доставка уведомления находит pending-строку
	mock.ExpectBegin()
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := CompleteOrder("00A1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Повторная — уже нет
	mock.ExpectBegin()
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err = CompleteOrder("00A1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsOrderAlreadyPaid(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	query := regexp.QuoteMeta(`SELECT count(*) FROM "payments"`)

	mock.ExpectQuery(query).WithArgs("00A1", OrderStatusPaid).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	paid, err := IsOrderAlreadyPaid("00A1")
	require.NoError(t, err)
	assert.True(t, paid)

	mock.ExpectQuery(query).WithArgs("00B2", OrderStatusPaid).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	paid, err = IsOrderAlreadyPaid("00B2")
	require.NoError(t, err)
	assert.False(t, paid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrderNotFoundIsNil(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	order, err := FindOrder("00ZZ")
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderTariffReSnapshotsAmounts(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	// Суммы и срок берутся из каталога заново, а не из старого снимка
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tariffs"`)).
		WillReturnRows(tariffRow(7, 60, 1200, 250))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET`)).
		WithArgs(1200, 250, PaymentTypeCrypto, 60, 7, "00A1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := UpdateOrderTariff("00A1", 7, PaymentTypeCrypto)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingOrderDerivesOrderID(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	// id 621 в base62 — "A1", итоговый order_id — "00A1"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(621))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "order_id"=`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, orderID, err := CreatePendingOrder(1, nil, PaymentTypeCrypto, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(621), id)
	assert.Equal(t, "00A1", orderID)
	assert.True(t, IsInternalOrderID(orderID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingOrderSnapshotsTariff(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	// Суммы и срок снимаются с тарифа при создании; последующие
	// изменения каталога заказ не трогают
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tariffs"`)).
		WillReturnRows(tariffRow(3, 30, 900, 150))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payments"`)).
		WithArgs(sqlmock.AnyArg(), 1, 3, PaymentTypeStars, nil, 900, 150, 30, OrderStatusPending, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "order_id"=`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tariffID := uint(3)
	_, orderID, err := CreatePendingOrder(1, &tariffID, PaymentTypeStars, nil)
	require.NoError(t, err)
	assert.Equal(t, "001", orderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExternalPendingOrderRejectsInternalNamespace(t *testing.T) {
	_, cleanup := newMockDB(t)
	defer cleanup()

	// До базы такой вызов не доходит
	err := CreateExternalPendingOrder("00A1", 1, 3, PaymentTypeCrypto)
	assert.Error(t, err)
}

func TestExpireStaleOrders(t *testing.T) {
	mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "status"=`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := ExpireStaleOrders(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
