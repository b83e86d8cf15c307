package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// драйвер postgres и файловый источник регистрируются при импорте
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"paysync/internal/config"
)

// ErrDirtySchema: предыдущая миграция оборвалась, схему нужно чинить руками.
var ErrDirtySchema = errors.New("networked schema is dirty")

// Migrator — интерфейс для самой библиотеки migrate.Migrate
type Migrator interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// MigrationEngine — фабрика для создания мигратора (чтобы не лезть в ФС и БД в тестах)
type MigrationEngine func(sourceURL, databaseURL string) (Migrator, error)

// Migration накатывает схему сетевой БД: бизнес-таблицы с колонками синхронизации,
// журнал пакетов, трейл и журнал аудита.
type Migration struct {
	sourceURL   string
	databaseURI string
	engine      MigrationEngine
}

func NewMigration(conf *config.Config, engine MigrationEngine) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	source := conf.DB.Migrations
	if !strings.Contains(source, "://") {
		source = "file://" + source
	}
	return &Migration{
		sourceURL:   source,
		databaseURI: conf.DB.DatabaseURI,
		engine:      engine,
	}
}

// DefaultEngine — реальная реализация на golang-migrate
func DefaultEngine(sourceURL, databaseURL string) (Migrator, error) {
	return migrate.New(sourceURL, databaseURL)
}

// Up накатывает недостающие миграции и возвращает версию схемы.
// Отсутствие изменений ошибкой не считается.
func (mg *Migration) Up() (version uint, err error) {
	m, err := mg.engine(mg.sourceURL, mg.databaseURI)
	if err != nil {
		return 0, err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			err = errors.Join(err, fmt.Errorf("migration source: %w", serr))
		}
		if dberr != nil {
			err = errors.Join(err, fmt.Errorf("migration database: %w", dberr))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("migration version: %w", err)
	case dirty:
		return version, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}
	return version, nil
}
