package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertEmployee(t *testing.T, s *Storage, uuid, tenant, name string) {
	t.Helper()
	_, err := s.Exec(context.Background(),
		`INSERT INTO employees (uuid, tenant_id, device_id, sync_version, is_synced, created_at, updated_at, employee_code, full_name)
		 VALUES (?, ?, 'dev-1', 1, 0, ?, ?, ?, ?)`,
		uuid, tenant, int64(1000), int64(1000), "E-"+uuid, name)
	require.NoError(t, err)
}

func TestStorage_New_AppliesMigrations(t *testing.T) {
	s := setupTestStorage(t)

	rows, err := s.Query(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (?) ORDER BY name",
		[]string{"audit_logs", "employees", "sync_batches", "sync_trail"})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "audit_logs", rows[0].String("name"))
	assert.Equal(t, "sync_trail", rows[3].String("name"))
}

func TestStorage_QueryExec(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	insertEmployee(t, s, "u1", "T1", "Ada")
	insertEmployee(t, s, "u2", "T1", "Grace")
	insertEmployee(t, s, "u3", "T2", "Linus")

	rows, err := s.Query(ctx, "SELECT uuid, full_name, sync_version FROM employees WHERE tenant_id = ? ORDER BY uuid", "T1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[0].String("full_name"))
	assert.Equal(t, int64(1), rows[0].Int64("sync_version"))

	n, err := s.Exec(ctx, "UPDATE employees SET is_synced = 1 WHERE tenant_id = ? AND uuid IN (?)", "T1", []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStorage_UpsertNormalizedDialect(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	insertEmployee(t, s, "u1", "T1", "Ada")

	upsert := `INSERT INTO employees (uuid, tenant_id, sync_version, is_synced, created_at, updated_at, employee_code, full_name)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO UPDATE SET
			sync_version = EXCLUDED.sync_version,
			full_name = EXCLUDED.full_name,
			is_synced = 1
		WHERE employees.tenant_id = EXCLUDED.tenant_id`

	n, err := s.Exec(ctx, upsert, "u1", "T1", int64(2), int64(1), int64(2), "E-u1", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// чужой тенант не может перезаписать строку
	n, err = s.Exec(ctx, upsert, "u1", "T2", int64(9), int64(1), int64(3), "E-u1", "Mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rows, err := s.Query(ctx, "SELECT full_name, sync_version, is_synced FROM employees WHERE uuid = ?", "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada Lovelace", rows[0].String("full_name"))
	assert.Equal(t, int64(2), rows[0].Int64("sync_version"))
	assert.True(t, rows[0].Bool("is_synced"))
}

func TestStorage_TxRollback(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx,
		`INSERT INTO employees (uuid, tenant_id, created_at, updated_at, employee_code, full_name) VALUES (?, ?, 1, 1, 'E', 'X')`,
		"u9", "T1")
	require.NoError(t, err)
	rows, err := tx.Query(ctx, "SELECT COUNT(*) AS n FROM employees")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[0].Int64("n"))
	require.NoError(t, tx.Rollback(ctx))

	rows, err = s.Query(ctx, "SELECT COUNT(*) AS n FROM employees")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows[0].Int64("n"))
}

func TestStorage_TimestampRoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	_, err := s.Exec(ctx,
		`INSERT INTO sync_batches (batch_id, tenant_id, direction, status, record_count, started_at) VALUES (?, ?, 'PUSH', 'PENDING', 0, ?)`,
		"b1", "T1", started)
	require.NoError(t, err)

	_, err = s.Exec(ctx, "UPDATE sync_batches SET completed_at = NOW() WHERE batch_id = ?", "b1")
	require.NoError(t, err)

	rows, err := s.Query(ctx, "SELECT started_at, completed_at FROM sync_batches WHERE batch_id = ?", "b1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, started.Equal(rows[0].Time("started_at")))
	assert.False(t, rows[0].Time("completed_at").IsZero())
}
