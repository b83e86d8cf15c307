package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"paysync/internal/infrastructure/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Встроенный бэкенд. Файл БД является единственным ресурсом процесса, поэтому
// весь доступ идет через одно соединение: записи сериализуются драйвером.
type Storage struct {
	db   *sql.DB
	path string
}

var _ storage.Backend = (*Storage)(nil)

// New открывает (или создает) файл БД и накатывает встроенные миграции.
func New(ctx context.Context, path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	// SQLite допускает одного писателя, держим ровно одно соединение
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local database: %w", err)
	}

	s := &Storage{db: db, path: path}

	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init local schema: %w", err)
	}

	return s, nil
}

func (s *Storage) runMigrations(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *Storage) Name() string { return "sqlite" }

func (s *Storage) Dialect() storage.Dialect { return storage.DialectSQLite }

func (s *Storage) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	q, a, err := storage.Rebind(storage.DialectSQLite, query, args)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *Storage) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, a, err := storage.Rebind(storage.DialectSQLite, query, args)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, q, a...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txWrapper{tx: tx}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

type txWrapper struct {
	tx *sql.Tx
}

func (t *txWrapper) Query(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	q, a, err := storage.Rebind(storage.DialectSQLite, query, args)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (t *txWrapper) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, a, err := storage.Rebind(storage.DialectSQLite, query, args)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, q, a...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *txWrapper) Commit(_ context.Context) error {
	return t.tx.Commit()
}

func (t *txWrapper) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

func scanRows(rows *sql.Rows) ([]storage.Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []storage.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(storage.Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok && !strings.EqualFold(types[i].DatabaseTypeName(), "BLOB") {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
