package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"paysync/internal/app/client"
	clientcfg "paysync/internal/app/client/config"
	"paysync/internal/app/server/api"
	"paysync/internal/config"
	"paysync/internal/domain/audit"
	"paysync/internal/domain/batch"
	"paysync/internal/domain/mode"
	"paysync/internal/domain/sync"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/postgres"
	"paysync/internal/infrastructure/storage/router"
	"paysync/internal/infrastructure/storage/sqlite"
	"paysync/internal/utils/logger"
)

const shutdownTimeout = 10 * time.Second

// Собранный процесс: хранилища, режим, движок синхронизации и HTTP API.
type App struct {
	config  *config.Config
	log     *slog.Logger
	modes   *mode.Manager
	router  *router.Router
	monitor *mode.Monitor
	server  *http.Server
	wg      gosync.WaitGroup
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	local, err := sqlite.New(ctx, cfg.DB.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}

	var (
		primary storage.Backend
		pg      *postgres.Storage
	)
	if cfg.DB.DatabaseURI != "" {
		pg, err = postgres.New(ctx, cfg)
		if err != nil {
			local.Close()
			return nil, fmt.Errorf("primary storage: %w", err)
		}
		primary = pg
	}

	modes := mode.NewManager(cfg.StartsOnline() && primary != nil, cfg.Sync.LockTimeout, log)

	r, err := router.New(primary, local, modes, log)
	if err != nil {
		modes.Close()
		local.Close()
		return nil, err
	}

	var remote sync.Remote
	if cfg.Sync.RemoteURL != "" {
		rc, err := remoteClient(cfg, log)
		if err != nil {
			modes.Close()
			r.Close()
			return nil, err
		}
		remote = rc
	}

	auditLedger := audit.NewLedger(r.Session(true), cfg.DeviceID, log)
	engine := sync.NewService(r, modes, batch.NewLedger(), auditLedger, remote, sync.Config{
		DeviceID:       cfg.DeviceID,
		TxDrainTimeout: cfg.Sync.TxDrainTimeout,
	}, log)

	app := &App{
		config: cfg,
		log:    log,
		modes:  modes,
		router: r,
	}

	switch {
	case pg != nil:
		app.monitor = mode.NewMonitor(modes, mode.NewBackendProber(pg), cfg.Sync.ProbeInterval, log)
	case cfg.Sync.RemoteURL != "":
		app.monitor = mode.NewMonitor(modes, mode.NewHTTPProber(cfg.Sync.RemoteURL), cfg.Sync.ProbeInterval, log)
	}

	mux := api.New(api.Deps{
		State:             app,
		Sync:              engine,
		Audit:             auditLedger,
		OperatorTokenHash: cfg.Server.OperatorTokenHash,
		DeviceTokenHash:   cfg.Server.DeviceTokenHash,
	}, log)

	app.server = &http.Server{
		Addr:              cfg.Server.RunAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

func remoteClient(cfg *config.Config, log *slog.Logger) (*client.HTTPClient, error) {
	u, err := url.Parse(cfg.Sync.RemoteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid remote_url %q", cfg.Sync.RemoteURL)
	}
	return client.NewHTTPClient(&clientcfg.Config{
		ServerAddress: u.Host,
		EnableTLS:     u.Scheme == "https",
		DeviceID:      cfg.DeviceID,
		OperatorToken: cfg.Sync.RemoteToken,
		Timeout:       30 * time.Second,
	}, log), nil
}

// Mode и BackendName отдают состояние для health-check.
func (a *App) Mode() mode.Mode { return a.modes.Mode() }

func (a *App) BackendName() string { return a.router.BackendName() }

// Run обслуживает HTTP до отмены ctx, затем останавливается.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.monitor != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.monitor.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server started",
			slog.String("address", a.config.Server.RunAddress),
			slog.String("deployment", a.config.Deployment),
			slog.String("mode", a.modes.Mode().String()),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", logger.Err(err))
	}

	cancel()
	a.wg.Wait()
	return runErr
}

// Close освобождает хранилища и таймеры.
func (a *App) Close() error {
	a.modes.Close()
	return a.router.Close()
}
