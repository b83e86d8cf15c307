package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paysync/internal/config"
	"paysync/internal/infrastructure/migration"
	"paysync/internal/infrastructure/storage"
)

// Сетевой бэкенд на PostgreSQL (пул соединений pgx).
type Storage struct {
	pool     *pgxpool.Pool
	migrator *migration.Migration

	mu       sync.Mutex
	migrated bool
}

var _ storage.Backend = (*Storage)(nil)

// New создает пул и накатывает миграции. Пул ленивый: недоступность сервера
// на старте не ошибка, роутер переключится на локальную БД, а схема
// докатится при первом успешном Ping.
func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	return newStorage(ctx, cfg, migration.DefaultEngine)
}

func newStorage(ctx context.Context, cfg *config.Config, engine migration.MigrationEngine) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("parse database uri: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Storage{pool: pool, migrated: true}
	if cfg.DB.Migrations != "" {
		s.migrator = migration.NewMigration(cfg, engine)
		s.migrated = false
		if err := s.migrate(); err != nil && !storage.IsConnectivityError(err) {
			pool.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}

	return s, nil
}

// migrate накатывает схему один раз; после неудачи следующий вызов пробует снова.
func (s *Storage) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.migrated {
		return nil
	}
	if _, err := s.migrator.Up(); err != nil {
		return err
	}
	s.migrated = true
	return nil
}

func (s *Storage) Name() string { return "postgres" }

func (s *Storage) Dialect() storage.Dialect { return storage.DialectPostgres }

func (s *Storage) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	q, a, err := storage.Rebind(storage.DialectPostgres, query, args)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Storage) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, a, err := storage.Rebind(storage.DialectPostgres, query, args)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, q, a...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txWrapper{tx: tx}, nil
}

// Пока схема не накатана, бэкенд считается недоступным.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.migrate(); err != nil {
		return fmt.Errorf("networked schema not ready: %w", err)
	}
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

type txWrapper struct {
	tx pgx.Tx
}

func (t *txWrapper) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	q, a, err := storage.Rebind(storage.DialectPostgres, query, args)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (t *txWrapper) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, a, err := storage.Rebind(storage.DialectPostgres, query, args)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, q, a...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txWrapper) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txWrapper) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func collect(rows pgx.Rows) ([]storage.Row, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []storage.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(storage.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
