package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// Операция отклонена, пока идет синхронизация (SYNC_LOCKED, HTTP 423).
	ErrSyncLocked = errors.New("storage is locked while synchronization is in progress")
	// Сетевой бэкенд недоступен.
	ErrConnectivity = errors.New("networked backend is unreachable")
	// Нет ни одного бэкенда для маршрутизации.
	ErrNoBackend = errors.New("no storage backend available")
	// Операция транзакции без BeginTransaction.
	ErrTxNotStarted = errors.New("transaction not started")
	// Повторный BeginTransaction на том же соединении.
	ErrTxAlreadyStarted = errors.New("transaction already started")
	// Соединение уже освобождено.
	ErrConnReleased = errors.New("connection already released")
)

// IsConnectivityError сообщает, относится ли ошибка к классу "нет связи с сервером":
// отказ в соединении, сброс, таймаут, DNS, ошибка аутентификации.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	// отмену со стороны вызывающего не считаем потерей связи
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrConnectivity) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQLSTATE 08: connection exception, 28: invalid authorization specification
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "28":
				return true
			}
		}
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, driver.ErrBadConn):
		return true
	}

	return false
}
