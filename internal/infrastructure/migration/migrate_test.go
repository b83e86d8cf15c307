package migration

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paysync/internal/config"
)

// MockMigrator — мок для интерфейса Migrator
type MockMigrator struct {
	mock.Mock
}

func (m *MockMigrator) Up() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func (m *MockMigrator) Close() (error, error) {
	args := m.Called()
	return args.Error(0), args.Error(1)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.DB.DatabaseURI = "postgres://paysync@localhost/paysync"
	cfg.DB.Migrations = "migrations/postgres"
	return cfg
}

func engineFor(m Migrator) MigrationEngine {
	return func(string, string) (Migrator, error) { return m, nil }
}

func TestMigration_Up_Success(t *testing.T) {
	mockM := new(MockMigrator)
	mockM.On("Up").Return(nil)
	mockM.On("Version").Return(uint(1), false, nil)
	mockM.On("Close").Return(nil, nil)

	var gotSource, gotDB string
	engine := func(source, db string) (Migrator, error) {
		gotSource, gotDB = source, db
		return mockM, nil
	}

	version, err := NewMigration(testConfig(), engine).Up()

	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.Equal(t, "file://migrations/postgres", gotSource)
	assert.Equal(t, "postgres://paysync@localhost/paysync", gotDB)
	mockM.AssertExpectations(t)
}

func TestMigration_SourceWithScheme(t *testing.T) {
	cfg := testConfig()
	cfg.DB.Migrations = "github://org/repo/migrations"

	var gotSource string
	engine := func(source, _ string) (Migrator, error) {
		gotSource = source
		return nil, errors.New("stop")
	}

	_, err := NewMigration(cfg, engine).Up()

	assert.Error(t, err)
	assert.Equal(t, "github://org/repo/migrations", gotSource)
}

func TestMigration_Up_NoChange(t *testing.T) {
	mockM := new(MockMigrator)
	// ErrNoChange не должна считаться ошибкой в методе Up()
	mockM.On("Up").Return(migrate.ErrNoChange)
	mockM.On("Version").Return(uint(1), false, nil)
	mockM.On("Close").Return(nil, nil)

	version, err := NewMigration(testConfig(), engineFor(mockM)).Up()

	assert.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestMigration_Up_EmptySource(t *testing.T) {
	mockM := new(MockMigrator)
	mockM.On("Up").Return(migrate.ErrNoChange)
	mockM.On("Version").Return(uint(0), false, migrate.ErrNilVersion)
	mockM.On("Close").Return(nil, nil)

	version, err := NewMigration(testConfig(), engineFor(mockM)).Up()

	assert.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigration_Up_Dirty(t *testing.T) {
	mockM := new(MockMigrator)
	mockM.On("Up").Return(nil)
	mockM.On("Version").Return(uint(3), true, nil)
	mockM.On("Close").Return(nil, nil)

	version, err := NewMigration(testConfig(), engineFor(mockM)).Up()

	assert.ErrorIs(t, err, ErrDirtySchema)
	assert.Equal(t, uint(3), version)
}

func TestMigration_Up_Failure(t *testing.T) {
	mockM := new(MockMigrator)
	mockM.On("Up").Return(errors.New("dirty database"))
	mockM.On("Close").Return(nil, errors.New("close failed"))

	_, err := NewMigration(testConfig(), engineFor(mockM)).Up()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dirty database")
	assert.Contains(t, err.Error(), "close failed")
	mockM.AssertNotCalled(t, "Version")
}

func TestMigration_Up_EngineError(t *testing.T) {
	// Ошибка на этапе создания мигратора (например, неверный драйвер)
	engine := func(source, db string) (Migrator, error) {
		return nil, errors.New("engine crash")
	}

	_, err := NewMigration(testConfig(), engine).Up()

	assert.Error(t, err)
	assert.Equal(t, "engine crash", err.Error())
}
