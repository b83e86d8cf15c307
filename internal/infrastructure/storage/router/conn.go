package router

import (
	"context"
	"sync"

	"paysync/internal/infrastructure/storage"
)

// Хэндл, выданный Router.GetConnection. Без открытой транзакции
// Query/Exec идут через роутер в режиме автокоммита.
type Conn struct {
	router *Router
	bypass bool

	mu       sync.Mutex
	tx       storage.Tx
	backend  storage.Backend
	released bool
	once     sync.Once
}

var _ storage.Querier = (*Conn)(nil)

// BeginTransaction открывает транзакцию на активном бэкенде. Если сетевой
// бэкенд недоступен, транзакция открывается на локальном.
func (c *Conn) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return storage.ErrConnReleased
	}
	if c.tx != nil {
		return storage.ErrTxAlreadyStarted
	}

	b, err := c.router.route(c.bypass)
	if err != nil {
		return err
	}
	tx, err := b.Begin(ctx)
	if err != nil && c.router.shouldFailover(b, err) {
		c.router.failover(err)
		b = c.router.local
		tx, err = b.Begin(ctx)
	}
	if err != nil {
		return err
	}

	c.tx = tx
	c.backend = b
	return nil
}

// InTransaction сообщает, открыта ли транзакция.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Имя бэкенда открытой транзакции.
func (c *Conn) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return ""
	}
	return c.backend.Name()
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	tx, err := c.current()
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return c.router.Query(ctx, c.bypass, query, args...)
	}
	rows, err := tx.Query(ctx, query, args...)
	c.noteError(err)
	return rows, err
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tx, err := c.current()
	if err != nil {
		return 0, err
	}
	if tx == nil {
		return c.router.Exec(ctx, c.bypass, query, args...)
	}
	n, err := tx.Exec(ctx, query, args...)
	c.noteError(err)
	return n, err
}

func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return storage.ErrConnReleased
	}
	if c.tx == nil {
		return storage.ErrTxNotStarted
	}
	if _, err := c.router.route(c.bypass); err != nil {
		return err
	}

	err := c.tx.Commit(ctx)
	c.tx = nil
	if err != nil && c.router.shouldFailover(c.backend, err) {
		c.router.mode.SetOnline(false)
	}
	return err
}

func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return storage.ErrConnReleased
	}
	if c.tx == nil {
		return storage.ErrTxNotStarted
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	return err
}

// Release освобождает хэндл. Незакоммиченная транзакция откатывается.
// Повторный вызов ничего не делает.
func (c *Conn) Release(ctx context.Context) {
	c.once.Do(func() {
		c.mu.Lock()
		if c.tx != nil {
			if err := c.tx.Rollback(ctx); err != nil {
				c.router.log.Warn("rollback on release failed", "error", err)
			}
			c.tx = nil
		}
		c.released = true
		c.mu.Unlock()

		c.router.active.Add(-1)
	})
}

// current проверяет блокировку в момент операции и отдает открытую транзакцию.
func (c *Conn) current() (storage.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, storage.ErrConnReleased
	}
	if _, err := c.router.route(c.bypass); err != nil {
		return nil, err
	}
	return c.tx, nil
}

// noteError: потеря связи посреди транзакции не переигрывается, но режим обновляется.
func (c *Conn) noteError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	b := c.backend
	c.mu.Unlock()
	if c.router.shouldFailover(b, err) {
		c.router.failover(err)
	}
}
