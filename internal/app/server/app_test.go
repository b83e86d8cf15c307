package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"paysync/internal/config"
	"paysync/internal/domain/mode"
	"paysync/internal/infrastructure/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Env:        config.EnvLocal,
		Deployment: config.DeploymentDesktop,
		DeviceID:   "desk-1",
	}
	cfg.DB.LocalPath = filepath.Join(t.TempDir(), "local.db")
	cfg.Server.RunAddress = "127.0.0.1:0"
	cfg.Sync.ProbeInterval = time.Hour
	cfg.Sync.LockTimeout = time.Minute
	cfg.Sync.TxDrainTimeout = 50 * time.Millisecond
	return cfg
}

func TestNew_LocalOnly(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, mode.Offline, app.Mode())
	assert.Equal(t, "sqlite", app.BackendName())
	assert.Nil(t, app.monitor)

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"OFFLINE"`)
	assert.Contains(t, rec.Body.String(), `"backend":"sqlite"`)
}

func TestNew_RemoteWiresMonitor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.RemoteURL = "http://127.0.0.1:1"

	app, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.NotNil(t, app.monitor)
}

func TestNew_InvalidRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.RemoteURL = "::not a url"

	_, err := New(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_HealthReportsSyncing(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	tok := app.modes.EnterSync()
	defer app.modes.ExitSync(tok)

	_, err = app.router.Exec(context.Background(), false, "UPDATE employees SET full_name = ?", "x")
	require.ErrorIs(t, err, storage.ErrSyncLocked)

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Contains(t, rec.Body.String(), `"mode":"SYNCING"`)
}
