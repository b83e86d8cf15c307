package router

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"paysync/internal/domain/mode"
	"paysync/internal/infrastructure/storage"
)

// То, что роутер спрашивает перед каждой операцией.
type ModeController interface {
	Mode() mode.Mode
	IsOnline() bool
	SetOnline(online bool)
}

// Единый фасад query/exec/транзакций над сетевым и встроенным бэкендом.
// Режим перечитывается в момент каждой операции, копии не кэшируются.
type Router struct {
	primary storage.Backend
	local   storage.Backend
	mode    ModeController
	log     *slog.Logger

	active atomic.Int64
}

// New собирает роутер. primary может быть nil (десктоп без сетевой БД),
// local обязателен: это цель отказоустойчивого переключения.
func New(primary, local storage.Backend, mc ModeController, log *slog.Logger) (*Router, error) {
	if local == nil {
		return nil, storage.ErrNoBackend
	}
	return &Router{
		primary: primary,
		local:   local,
		mode:    mc,
		log:     log.With(slog.String("component", "storage_router")),
	}, nil
}

// route выбирает бэкенд для очередной операции.
func (r *Router) route(bypassLock bool) (storage.Backend, error) {
	switch r.mode.Mode() {
	case mode.Syncing:
		if !bypassLock {
			return nil, storage.ErrSyncLocked
		}
		// во время синхронизации режим скрывает связность, смотрим на нее напрямую
		if r.primary != nil && r.mode.IsOnline() {
			return r.primary, nil
		}
		return r.local, nil
	case mode.Offline:
		return r.local, nil
	default:
		if r.primary == nil {
			return r.local, nil
		}
		return r.primary, nil
	}
}

// Ошибка пришла от сетевого бэкенда и это потеря связи.
func (r *Router) shouldFailover(b storage.Backend, err error) bool {
	return b == r.primary && b != r.local && storage.IsConnectivityError(err)
}

func (r *Router) failover(err error) {
	r.log.Warn("primary backend unreachable, failing over to local",
		slog.String("backend", r.primary.Name()),
		slog.String("error", err.Error()),
	)
	r.mode.SetOnline(false)
}

func (r *Router) Query(ctx context.Context, bypassLock bool, query string, args ...any) ([]storage.Row, error) {
	b, err := r.route(bypassLock)
	if err != nil {
		return nil, err
	}
	rows, err := b.Query(ctx, query, args...)
	if err != nil && r.shouldFailover(b, err) {
		r.failover(err)
		return r.local.Query(ctx, query, args...)
	}
	return rows, err
}

func (r *Router) Exec(ctx context.Context, bypassLock bool, query string, args ...any) (int64, error) {
	b, err := r.route(bypassLock)
	if err != nil {
		return 0, err
	}
	n, err := b.Exec(ctx, query, args...)
	if err != nil && r.shouldFailover(b, err) {
		r.failover(err)
		return r.local.Exec(ctx, query, args...)
	}
	return n, err
}

// Session возвращает представление роутера с зафиксированным bypassLock,
// пригодное везде, где ждут storage.Querier.
func (r *Router) Session(bypassLock bool) storage.Querier {
	return &session{router: r, bypass: bypassLock}
}

// GetConnection выдает хэндл под транзакцию. Каждый выданный хэндл учитывается
// до вызова Release.
func (r *Router) GetConnection(_ context.Context, bypassLock bool) (*Conn, error) {
	if _, err := r.route(bypassLock); err != nil {
		return nil, err
	}
	r.active.Add(1)
	return &Conn{router: r, bypass: bypassLock}, nil
}

// Число выданных и еще не освобожденных хэндлов.
func (r *Router) ActiveTransactions() int64 {
	return r.active.Load()
}

// WaitIdle ждет до d, пока не освободятся все хэндлы. Возвращает true, если дождались.
func (r *Router) WaitIdle(ctx context.Context, d time.Duration) bool {
	if r.active.Load() == 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return r.active.Load() == 0
		case <-ticker.C:
			if r.active.Load() == 0 {
				return true
			}
		}
	}
}

// Имя бэкенда, на который сейчас ушел бы обычный запрос.
func (r *Router) BackendName() string {
	b, err := r.route(true)
	if err != nil || b == nil {
		return ""
	}
	return b.Name()
}

// Ping проверяет активный бэкенд.
func (r *Router) Ping(ctx context.Context) error {
	b, err := r.route(true)
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

// Close закрывает оба бэкенда.
func (r *Router) Close() error {
	var errs []error
	if r.primary != nil {
		errs = append(errs, r.primary.Close())
	}
	errs = append(errs, r.local.Close())
	return errors.Join(errs...)
}

type session struct {
	router *Router
	bypass bool
}

func (s *session) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return s.router.Query(ctx, s.bypass, query, args...)
}

func (s *session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return s.router.Exec(ctx, s.bypass, query, args...)
}
