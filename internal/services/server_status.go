package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/plushkinv/YadrenoVPN/internal/db"
	"github.com/plushkinv/YadrenoVPN/internal/logger"
)

type ServerStatus struct {
	ID          uint
	Name        string
	Online      bool
	LastChecked time.Time
}

var (
	statusMu     sync.RWMutex
	lastStatuses []ServerStatus
)

func GetServerStatuses() []ServerStatus {
	statusMu.RLock()
	defer statusMu.RUnlock()
	return lastStatuses
}

// UpdateAllServerStatuses опрашивает активные панели и кеширует результат.
// Недоступная панель — повод для алерта: на ней не выдать и не продлить ключ.
func UpdateAllServerStatuses() {
	servers, err := db.GetActiveServers()
	if err != nil {
		return
	}
	var statuses []ServerStatus
	for _, srv := range servers {
		status := ServerStatus{ID: srv.ID, Name: srv.Name, LastChecked: time.Now()}
		if err := NewXUIClient(&srv).Ping(); err != nil {
			logger.NotifyAdmin(fmt.Sprintf("Сервер %s (%s) недоступен: %v", srv.Name, srv.Host, err))
		} else {
			status.Online = true
		}
		statuses = append(statuses, status)
	}
	statusMu.Lock()
	lastStatuses = statuses
	statusMu.Unlock()
}
