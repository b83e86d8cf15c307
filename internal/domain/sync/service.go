package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/exp/slog"

	"paysync/internal/domain/audit"
	"paysync/internal/domain/batch"
	"paysync/internal/domain/mode"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/router"
)

const (
	defaultTxDrainTimeout = 5 * time.Second
	recentBatches         = 5
)

// Операции синхронизации, доступные транспорту.
type Servicer interface {
	Push(ctx context.Context, tenantID string, since int64) (*PushResult, error)
	Pull(ctx context.Context, tenantID string) (*ApplyResult, error)
	Ingest(ctx context.Context, bundle *Bundle, tenantID string) (*ApplyResult, error)
	Export(ctx context.Context, tenantID string, since int64, excludeDevice string) (*Bundle, error)
	Status(ctx context.Context, tenantID string) (*StatusResult, error)
	Reset(ctx context.Context, tenantID string) (*ResetResult, error)
	Trail(ctx context.Context, tenantID, batchID string) ([]batch.TrailEntry, error)
}

// То, что движку нужно от роутера хранилища.
type Store interface {
	Session(bypassLock bool) storage.Querier
	GetConnection(ctx context.Context, bypassLock bool) (*router.Conn, error)
	WaitIdle(ctx context.Context, d time.Duration) bool
	ActiveTransactions() int64
	BackendName() string
}

// Блокировка SYNCING.
type ModeLock interface {
	EnterSync() mode.SyncToken
	ExitSync(tok mode.SyncToken)
	Held(tok mode.SyncToken) bool
	Reset()
	Snapshot() mode.Snapshot
}

// Auditor пишет в журнал аудита.
type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

// Движок синхронизации.
type Service struct {
	store  Store
	modes  ModeLock
	ledger *batch.Ledger
	audit  Auditor
	remote Remote
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu       stdsync.Mutex
	inflight map[string]*claim
}

// Занятость тенанта. tok появляется после входа в SYNCING.
type claim struct {
	tok     mode.SyncToken
	entered bool
}

var _ Servicer = (*Service)(nil)

// NewService создает движок. remote может быть nil: тогда доступны только
// серверные операции (Ingest, Export) и чтение статуса.
func NewService(store Store, modes ModeLock, ledger *batch.Ledger, auditor Auditor, remote Remote, cfg Config, log *slog.Logger) *Service {
	if cfg.TxDrainTimeout <= 0 {
		cfg.TxDrainTimeout = defaultTxDrainTimeout
	}
	return &Service{
		store:    store,
		modes:    modes,
		ledger:   ledger,
		audit:    auditor,
		remote:   remote,
		cfg:      cfg,
		log:      log.With(slog.String("component", "sync_engine")),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]*claim),
	}
}

// Push собирает локальные изменения, отправляет их и подтверждает.
func (s *Service) Push(ctx context.Context, tenantID string, since int64) (*PushResult, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if s.remote == nil {
		return nil, ErrRemoteNotConfigured
	}

	release, err := s.acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	bundle, err := s.BuildPushBundle(ctx, since, tenantID)
	if err != nil {
		return nil, err
	}
	batchID := bundle.Metadata.BatchID
	log := s.log.With(slog.String("batch_id", batchID), slog.String("tenant_id", tenantID))

	if bundle.Metadata.RecordCount > 0 {
		if err := s.ledger.MarkProcessing(ctx, s.store.Session(true), batchID); err != nil {
			return nil, err
		}
		res, err := s.remote.SendBundle(ctx, bundle)
		if err == nil && !res.Success {
			err = ErrRemoteRejected
		}
		if err != nil {
			return nil, s.fail(ctx, &batch.Batch{
				BatchID:     batchID,
				TenantID:    tenantID,
				Direction:   batch.DirectionPush,
				RecordCount: bundle.Metadata.RecordCount,
				Watermark:   bundle.Metadata.Watermark,
			}, fmt.Errorf("transmit bundle: %w", err))
		}
		log.Debug("bundle acknowledged by remote",
			slog.Int("applied", res.Applied),
			slog.Int("conflicts", res.Conflicts),
			slog.Bool("skipped", res.Skipped),
		)
	}

	if err := s.MarkAsSynced(ctx, batchID, bundle.UUIDs(), tenantID); err != nil {
		return nil, err
	}

	log.Info("push completed", slog.Int("records", bundle.Metadata.RecordCount))
	s.record(ctx, tenantID, audit.ActionSyncPush,
		fmt.Sprintf("pushed %d records in batch %s", bundle.Metadata.RecordCount, batchID),
		map[string]any{"batchId": batchID, "records": bundle.Metadata.RecordCount, "since": since})

	return &PushResult{
		Success:       true,
		BatchID:       batchID,
		RecordsSynced: bundle.Metadata.RecordCount,
		TenantID:      tenantID,
	}, nil
}

// Pull забирает изменения с удаленного сервера начиная с водяного знака
// последнего успешного PULL и применяет их.
func (s *Service) Pull(ctx context.Context, tenantID string) (*ApplyResult, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if s.remote == nil {
		return nil, ErrRemoteNotConfigured
	}

	release, err := s.acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	var since int64
	last, err := s.ledger.LastSuccess(ctx, s.store.Session(true), tenantID, batch.DirectionPull)
	if err != nil {
		return nil, err
	}
	if last != nil {
		since = last.Watermark
	}

	bundle, err := s.remote.FetchBundle(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	if bundle.Metadata.Watermark < since {
		bundle.Metadata.Watermark = since
	}

	res, err := s.apply(ctx, bundle, tenantID, batch.DirectionPull)
	if err != nil {
		return nil, err
	}
	if !res.Skipped {
		s.record(ctx, tenantID, audit.ActionSyncPull,
			fmt.Sprintf("pulled batch %s: %d applied, %d conflicts", res.BatchID, res.Applied, res.Conflicts),
			res)
	}
	return res, nil
}

// Ingest применяет пакет, присланный устройством (сторона сервера).
func (s *Service) Ingest(ctx context.Context, bundle *Bundle, tenantID string) (*ApplyResult, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	release, err := s.acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := s.apply(ctx, bundle, tenantID, batch.DirectionPush)
	if err != nil {
		return nil, err
	}
	if !res.Skipped {
		s.record(ctx, tenantID, audit.ActionSyncIngest,
			fmt.Sprintf("ingested batch %s from device %s: %d applied, %d conflicts",
				res.BatchID, bundle.Metadata.DeviceID, res.Applied, res.Conflicts),
			res)
	}
	return res, nil
}

// ApplyIncomingBundle применяет пакет под уже взятой блокировкой SYNCING.
func (s *Service) ApplyIncomingBundle(ctx context.Context, bundle *Bundle, tenantID string) (*ApplyResult, error) {
	return s.apply(ctx, bundle, tenantID, batch.DirectionPull)
}

// Последний успешный обмен, режим и последние пакеты тенанта.
func (s *Service) Status(ctx context.Context, tenantID string) (*StatusResult, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	q := s.store.Session(true)

	recent, err := s.ledger.Recent(ctx, q, tenantID, recentBatches)
	if err != nil {
		return nil, err
	}

	var lastSync *time.Time
	for _, dir := range []batch.Direction{batch.DirectionPush, batch.DirectionPull} {
		b, err := s.ledger.LastSuccess(ctx, q, tenantID, dir)
		if err != nil {
			return nil, err
		}
		if b != nil && b.CompletedAt != nil && (lastSync == nil || b.CompletedAt.After(*lastSync)) {
			t := *b.CompletedAt
			lastSync = &t
		}
	}

	snap := s.modes.Snapshot()
	return &StatusResult{
		LastSyncTime:  lastSync,
		TenantID:      tenantID,
		Mode:          snap.Mode,
		ActiveSyncs:   snap.ActiveSyncs,
		Backend:       s.store.BackendName(),
		RecentBatches: recent,
	}, nil
}

// Reset принудительно снимает блокировку SYNCING. Только для оператора,
// подтвердившего, что зависшую синхронизацию можно бросить.
func (s *Service) Reset(ctx context.Context, tenantID string) (*ResetResult, error) {
	before := s.modes.Snapshot()
	s.modes.Reset()

	s.mu.Lock()
	if tenantID != "" {
		delete(s.inflight, tenantID)
	} else {
		s.inflight = make(map[string]*claim)
	}
	s.mu.Unlock()

	after := s.modes.Snapshot()
	s.log.Warn("sync lock reset by operator",
		slog.String("tenant_id", tenantID),
		slog.String("mode_before", before.Mode.String()),
		slog.Int("active_syncs", before.ActiveSyncs),
	)

	if tenantID != "" {
		s.audit.Log(ctx, s.entry(ctx, tenantID, audit.ActionSyncReset, "sync lock reset by operator",
			map[string]any{"mode": before.Mode, "activeSyncs": before.ActiveSyncs},
			map[string]any{"mode": after.Mode}))
	}

	return &ResetResult{Success: true, Mode: after.Mode}, nil
}

// Исходы записей пакета тенанта.
func (s *Service) Trail(ctx context.Context, tenantID, batchID string) ([]batch.TrailEntry, error) {
	q := s.store.Session(true)
	b, err := s.ledger.Get(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	if b.TenantID != tenantID {
		return nil, batch.ErrBatchNotFound
	}
	return s.ledger.Trail(ctx, q, batchID)
}

// acquire берет блокировку тенанта и режим SYNCING. Перед входом ждет
// завершения открытых транзакций не дольше TxDrainTimeout. Занятость,
// чей токен сгорел по аварийному таймеру, считается свободной.
func (s *Service) acquire(ctx context.Context, tenantID string) (func(), error) {
	s.mu.Lock()
	if c, busy := s.inflight[tenantID]; busy {
		if !c.entered || s.modes.Held(c.tok) {
			s.mu.Unlock()
			return nil, ErrSyncInProgress
		}
		s.log.Warn("taking over expired sync lock", slog.String("tenant_id", tenantID))
	}
	c := &claim{}
	s.inflight[tenantID] = c
	s.mu.Unlock()

	if !s.store.WaitIdle(ctx, s.cfg.TxDrainTimeout) {
		s.log.Warn("entering sync with open transactions",
			slog.String("tenant_id", tenantID),
			slog.Int64("active_transactions", s.store.ActiveTransactions()),
		)
	}
	tok := s.modes.EnterSync()

	s.mu.Lock()
	c.tok = tok
	c.entered = true
	s.mu.Unlock()

	return func() {
		s.modes.ExitSync(tok)
		s.mu.Lock()
		if cur, ok := s.inflight[tenantID]; ok && cur == c {
			delete(s.inflight, tenantID)
		}
		s.mu.Unlock()
	}, nil
}

// fail помечает пакет FAILED вне откатанной транзакции и оборачивает причину.
func (s *Service) fail(ctx context.Context, b *batch.Batch, cause error) error {
	if err := s.ledger.MarkFailed(ctx, s.store.Session(true), b, cause); err != nil {
		s.log.Error("mark batch failed", slog.String("batch_id", b.BatchID), slog.String("error", err.Error()))
	}
	s.log.Error("sync batch failed",
		slog.String("batch_id", b.BatchID),
		slog.String("tenant_id", b.TenantID),
		slog.String("direction", string(b.Direction)),
		slog.String("error", cause.Error()),
	)
	s.audit.Log(ctx, s.entry(ctx, b.TenantID, audit.ActionSyncFailed,
		fmt.Sprintf("%s batch %s failed", b.Direction, b.BatchID), nil,
		map[string]any{"batchId": b.BatchID, "error": cause.Error()}))
	return &TransactionError{BatchID: b.BatchID, Err: cause}
}

func (s *Service) record(ctx context.Context, tenantID, action, description string, newValue any) {
	s.audit.Log(ctx, s.entry(ctx, tenantID, action, description, nil, newValue))
}

func (s *Service) entry(ctx context.Context, tenantID, action, description string, oldValue, newValue any) audit.Entry {
	actor := audit.ActorFrom(ctx)
	return audit.Entry{
		TenantID:    tenantID,
		UserID:      actor.UserID,
		ActionType:  action,
		Module:      audit.ModuleSync,
		Description: description,
		OldValue:    audit.Snapshot(oldValue),
		NewValue:    audit.Snapshot(newValue),
		IPAddress:   actor.IPAddress,
		DeviceID:    s.cfg.DeviceID,
	}
}

// withTx выполняет fn в транзакции соединения в обход блокировки.
// Соединение освобождается до возврата, чтобы вызывающий мог писать вне транзакции.
func (s *Service) withTx(ctx context.Context, fn func(conn *router.Conn) error) error {
	conn, err := s.store.GetConnection(ctx, true)
	if err != nil {
		return err
	}
	defer conn.Release(ctx)

	if err := conn.BeginTransaction(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(conn); err != nil {
		if rbErr := conn.Rollback(ctx); rbErr != nil {
			s.log.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := conn.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
