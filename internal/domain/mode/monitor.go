package mode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/exp/slog"
)

const (
	DefaultProbeInterval = 30 * time.Second
	probeTimeout         = 5 * time.Second
)

// Prober проверяет доступность сети.
type Prober interface {
	Probe(ctx context.Context) error
}

// То, что умеет Ping (сетевой бэкенд хранилища).
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendProber проверяет связь пингом сетевой БД (серверная установка).
type BackendProber struct {
	backend Pinger
}

func NewBackendProber(backend Pinger) *BackendProber {
	return &BackendProber{backend: backend}
}

func (p *BackendProber) Probe(ctx context.Context) error {
	return p.backend.Ping(ctx)
}

// HTTPProber проверяет доступность удаленного сервера по health-эндпоинту (десктоп).
type HTTPProber struct {
	client *http.Client
	url    string
}

func NewHTTPProber(baseURL string) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{Timeout: probeTimeout},
		url:    baseURL + "/api/v1/health",
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Monitor периодически проверяет сеть и обновляет Manager.
type Monitor struct {
	manager  *Manager
	prober   Prober
	interval time.Duration
	log      *slog.Logger
}

func NewMonitor(manager *Manager, prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		manager:  manager,
		prober:   prober,
		interval: interval,
		log:      log.With(slog.String("component", "connectivity_monitor")),
	}
}

// Run блокируется до отмены ctx. Первая проверка выполняется сразу.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce выполняет одну проверку и возвращает ее результат.
func (m *Monitor) ProbeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	if err != nil {
		m.log.Debug("connectivity probe failed", slog.String("error", err.Error()))
	}
	online := err == nil
	m.manager.SetOnline(online)
	return online
}
