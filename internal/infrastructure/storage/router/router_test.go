package router

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"paysync/internal/domain/mode"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/sqlite"
)

// unreachableBackend ведет себя как сетевая БД, до которой нет маршрута.
type unreachableBackend struct {
	calls atomic.Int32
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

func (b *unreachableBackend) Name() string               { return "postgres" }
func (b *unreachableBackend) Dialect() storage.Dialect   { return storage.DialectPostgres }
func (b *unreachableBackend) Ping(context.Context) error { return refused() }
func (b *unreachableBackend) Close() error               { return nil }

func (b *unreachableBackend) Query(context.Context, string, ...any) ([]storage.Row, error) {
	b.calls.Add(1)
	return nil, refused()
}

func (b *unreachableBackend) Exec(context.Context, string, ...any) (int64, error) {
	b.calls.Add(1)
	return 0, refused()
}

func (b *unreachableBackend) Begin(context.Context) (storage.Tx, error) {
	b.calls.Add(1)
	return nil, refused()
}

func setupRouter(t *testing.T, primary storage.Backend, online bool) (*Router, *mode.Manager) {
	t.Helper()
	local, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)

	m := mode.NewManager(online, time.Minute, slog.Default())
	t.Cleanup(m.Close)

	r, err := New(primary, local, m, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, m
}

const insertEmployee = `INSERT INTO employees (uuid, tenant_id, sync_version, is_synced, created_at, updated_at, employee_code, full_name)
	VALUES (?, ?, 1, 0, 1, 1, ?, ?)`

func countEmployees(t *testing.T, r *Router) int64 {
	t.Helper()
	rows, err := r.Query(context.Background(), true, "SELECT COUNT(*) AS n FROM employees")
	require.NoError(t, err)
	return rows[0].Int64("n")
}

func TestNew_RequiresLocal(t *testing.T) {
	m := mode.NewManager(false, time.Minute, slog.Default())
	defer m.Close()

	_, err := New(nil, nil, m, slog.Default())
	assert.ErrorIs(t, err, storage.ErrNoBackend)
}

func TestRouter_OfflineRoutesToLocal(t *testing.T) {
	primary := &unreachableBackend{}
	r, _ := setupRouter(t, primary, false)
	ctx := context.Background()

	_, err := r.Exec(ctx, false, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)

	assert.Equal(t, int32(0), primary.calls.Load())
	assert.Equal(t, int64(1), countEmployees(t, r))
	assert.Equal(t, "sqlite", r.BackendName())
}

func TestRouter_FailoverOnConnectivityError(t *testing.T) {
	primary := &unreachableBackend{}
	r, m := setupRouter(t, primary, true)
	ctx := context.Background()

	assert.Equal(t, "postgres", r.BackendName())

	n, err := r.Exec(ctx, false, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, mode.Offline, m.Mode())

	// дальнейшие запросы сразу идут в локальную БД
	rows, err := r.Query(ctx, false, "SELECT full_name FROM employees WHERE uuid = ?", "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].String("full_name"))
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestRouter_SyncLocked(t *testing.T) {
	r, m := setupRouter(t, nil, false)
	ctx := context.Background()

	tok := m.EnterSync()

	_, err := r.Exec(ctx, false, insertEmployee, "u1", "T1", "E1", "Ada")
	assert.ErrorIs(t, err, storage.ErrSyncLocked)

	_, err = r.Query(ctx, false, "SELECT 1")
	assert.ErrorIs(t, err, storage.ErrSyncLocked)

	_, err = r.GetConnection(ctx, false)
	assert.ErrorIs(t, err, storage.ErrSyncLocked)

	// движок синхронизации проходит в обход блокировки
	_, err = r.Exec(ctx, true, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)

	m.ExitSync(tok)

	_, err = r.Session(false).Exec(ctx, insertEmployee, "u2", "T1", "E2", "Grace")
	require.NoError(t, err)
	assert.Equal(t, int64(2), countEmployees(t, r))
}

func TestConn_TransactionCommitAndRollback(t *testing.T) {
	r, _ := setupRouter(t, nil, false)
	ctx := context.Background()

	conn, err := r.GetConnection(ctx, false)
	require.NoError(t, err)
	require.NoError(t, conn.BeginTransaction(ctx))
	assert.ErrorIs(t, conn.BeginTransaction(ctx), storage.ErrTxAlreadyStarted)

	_, err = conn.Exec(ctx, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)
	require.NoError(t, conn.Rollback(ctx))
	assert.ErrorIs(t, conn.Commit(ctx), storage.ErrTxNotStarted)

	require.NoError(t, conn.BeginTransaction(ctx))
	_, err = conn.Exec(ctx, insertEmployee, "u2", "T1", "E2", "Grace")
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))
	conn.Release(ctx)

	assert.Equal(t, int64(1), countEmployees(t, r))
}

func TestConn_TransactionFailsOverToLocal(t *testing.T) {
	primary := &unreachableBackend{}
	r, m := setupRouter(t, primary, true)
	ctx := context.Background()

	conn, err := r.GetConnection(ctx, false)
	require.NoError(t, err)
	defer conn.Release(ctx)

	require.NoError(t, conn.BeginTransaction(ctx))
	assert.Equal(t, "sqlite", conn.Backend())
	assert.Equal(t, mode.Offline, m.Mode())

	_, err = conn.Exec(ctx, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))
}

func TestConn_ReleaseIsIdempotentAndRollsBack(t *testing.T) {
	r, _ := setupRouter(t, nil, false)
	ctx := context.Background()

	conn, err := r.GetConnection(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ActiveTransactions())

	require.NoError(t, conn.BeginTransaction(ctx))
	_, err = conn.Exec(ctx, insertEmployee, "u1", "T1", "E1", "Ada")
	require.NoError(t, err)

	conn.Release(ctx)
	conn.Release(ctx)
	assert.Equal(t, int64(0), r.ActiveTransactions())

	_, err = conn.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, storage.ErrConnReleased)
	assert.Equal(t, int64(0), countEmployees(t, r))
}

func TestRouter_WaitIdle(t *testing.T) {
	r, _ := setupRouter(t, nil, false)
	ctx := context.Background()

	assert.True(t, r.WaitIdle(ctx, time.Millisecond))

	conn, err := r.GetConnection(ctx, false)
	require.NoError(t, err)
	assert.False(t, r.WaitIdle(ctx, 20*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		conn.Release(ctx)
	}()
	assert.True(t, r.WaitIdle(ctx, time.Second))
}
