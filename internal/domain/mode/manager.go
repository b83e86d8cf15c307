package mode

import (
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Сколько SYNCING может держаться без ExitSync.
const DefaultLockTimeout = 5 * time.Minute

// Единственный источник правды о режиме. Хранилище и движок синхронизации
// получают его явно и читают Mode() в момент использования, а не кэшируют.
type Manager struct {
	mu          sync.Mutex
	online      bool
	active      int
	generation  uint64
	lockedSince time.Time
	timer       *time.Timer
	lockTimeout time.Duration
	mode        Mode
	log         *slog.Logger
}

func NewManager(online bool, lockTimeout time.Duration, log *slog.Logger) *Manager {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	m := &Manager{
		online:      online,
		lockTimeout: lockTimeout,
		log:         log.With(slog.String("component", "mode_manager")),
	}
	m.mode = m.compute()
	return m
}

// Mode возвращает текущий режим.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline записывает результат проверки сети. Пока идет синхронизация,
// режим остается SYNCING, новое значение применится при выходе из нее.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.log.Info("connectivity changed", slog.Bool("online", online))
	m.recompute()
}

// EnterSync переводит процесс в SYNCING и взводит аварийный таймер.
// Параллельные синхронизации разных тенантов учитываются счетчиком.
func (m *Manager) EnterSync() SyncToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active++
	if m.active == 1 {
		m.lockedSince = time.Now()
		m.armTimer()
	}
	m.recompute()

	return SyncToken{generation: m.generation}
}

// ExitSync снимает одну синхронизацию. Устаревший токен игнорируется.
func (m *Manager) ExitSync(tok SyncToken) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tok.generation != m.generation {
		m.log.Debug("stale sync token ignored",
			slog.Uint64("token_generation", tok.generation),
			slog.Uint64("generation", m.generation))
		return
	}
	if m.active > 0 {
		m.active--
	}
	if m.active == 0 {
		m.clearLock()
	}
	m.recompute()
}

// Held сообщает, держит ли токен блокировку: после аварийного или ручного
// сброса все ранее выданные токены недействительны.
func (m *Manager) Held(tok SyncToken) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tok.generation == m.generation && m.active > 0
}

// Ручной сброс блокировки оператором после подтверждения,
// что зависшую синхронизацию можно бросить.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active > 0 {
		m.log.Warn("sync lock reset by operator", slog.Int("active_syncs", m.active))
	}
	m.generation++
	m.active = 0
	m.clearLock()
	m.recompute()
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Mode:        m.mode,
		Online:      m.online,
		ActiveSyncs: m.active,
		LockedSince: m.lockedSince,
	}
}

// Close останавливает аварийный таймер.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// armTimer взводит таймер при входе в SYNCING, отсчет идет от lockedSince.
func (m *Manager) armTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
	gen := m.generation
	m.timer = time.AfterFunc(m.lockTimeout, func() { m.expire(gen) })
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.active == 0 {
		return
	}
	m.log.Warn("sync lock held too long, forcing release",
		slog.Duration("timeout", m.lockTimeout),
		slog.Int("active_syncs", m.active),
		slog.Time("locked_since", m.lockedSince))

	m.generation++
	m.active = 0
	m.clearLock()
	m.recompute()
}

func (m *Manager) clearLock() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.lockedSince = time.Time{}
}

func (m *Manager) compute() Mode {
	switch {
	case m.active > 0:
		return Syncing
	case m.online:
		return Online
	default:
		return Offline
	}
}

func (m *Manager) recompute() {
	next := m.compute()
	if next == m.mode {
		return
	}
	m.log.Info("mode changed", slog.String("from", m.mode.String()), slog.String("to", next.String()))
	m.mode = next
}
