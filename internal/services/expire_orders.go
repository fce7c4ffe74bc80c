package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

// Заказ, не оплаченный за сутки, оплачен уже не будет:
// инвойс Stars и счёт процессинга к этому моменту протухают
const stalePendingOrderAge = 24 * time.Hour

// ExpirePendingOrders переводит зависшие pending-заказы в expired.
// Единственный путь заказа в expired — этот фоновый процесс.
func ExpirePendingOrders() {
	n, err := db.ExpireStaleOrders(stalePendingOrderAge)
	if err != nil {
		logger.Error("stale order sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("stale orders expired", zap.Int64("count", n))
	}
}
