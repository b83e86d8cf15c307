package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"paysync/internal/infrastructure/storage"
)

// Журнал аудита с цепочкой хэшей, по цепочке на тенанта.
// Пишет через переданный Querier, от активного бэкенда не зависит.
type Ledger struct {
	db       storage.Querier
	deviceID string
	log      *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewLedger(db storage.Querier, deviceID string, log *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		deviceID: deviceID,
		log:      log.With(slog.String("component", "audit_ledger")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append дописывает запись в конец цепочки тенанта и заполняет ID, PrevHash и Hash.
func (l *Ledger) Append(ctx context.Context, e *Entry) error {
	if e.TenantID == "" {
		return ErrTenantRequired
	}
	if e.ActionType == "" {
		return ErrActionRequired
	}
	if e.DeviceID == "" {
		e.DeviceID = l.deviceID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.lastHash(ctx, e.TenantID)
	if err != nil {
		return err
	}

	e.PrevHash = prev
	e.CreatedAt = l.now().UTC().Truncate(time.Microsecond)
	e.Hash = ComputeHash(prev, e)

	rows, err := l.db.Query(ctx,
		`INSERT INTO audit_logs (tenant_id, user_id, action_type, module, description, old_value, new_value,
			ip_address, device_id, prev_hash, hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		e.TenantID, e.UserID, e.ActionType, e.Module, e.Description, nullable(e.OldValue), nullable(e.NewValue),
		e.IPAddress, e.DeviceID, e.PrevHash, e.Hash, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if len(rows) > 0 {
		e.ID = rows[0].Int64("id")
	}
	return nil
}

// Append для бизнес-операций: ошибка только логируется.
func (l *Ledger) Log(ctx context.Context, e Entry) {
	if err := l.Append(ctx, &e); err != nil {
		l.log.Error("audit append failed",
			slog.String("tenant_id", e.TenantID),
			slog.String("action", e.ActionType),
			slog.String("error", err.Error()),
		)
	}
}

// Verify проходит записи в порядке вставки и пересчитывает хэши.
// Пустой tenantID проверяет все цепочки.
func (l *Ledger) Verify(ctx context.Context, tenantID string) (*Report, error) {
	query := "SELECT " + entryColumns + " FROM audit_logs"
	var args []any
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY id"

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	report := &Report{Valid: true, Count: len(rows), Issues: []Issue{}}
	prev := make(map[string]string)

	for _, r := range rows {
		e := toEntry(r)
		expectedPrev, ok := prev[e.TenantID]
		if !ok {
			expectedPrev = GenesisHash
		}

		if e.PrevHash != expectedPrev {
			report.Issues = append(report.Issues, Issue{EntryID: e.ID, TenantID: e.TenantID, Reason: ReasonPrevHashMismatch})
		}
		if ComputeHash(expectedPrev, e) != e.Hash {
			report.Issues = append(report.Issues, Issue{EntryID: e.ID, TenantID: e.TenantID, Reason: ReasonHashMismatch})
		}
		prev[e.TenantID] = e.Hash
	}

	if len(report.Issues) > 0 {
		report.Valid = false
		l.log.Warn("audit chain integrity failure", slog.Int("issues", len(report.Issues)))
	}
	return report, nil
}

// Записи тенанта, новые первыми.
func (l *Ledger) Entries(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	rows, err := l.db.Query(ctx,
		"SELECT "+entryColumns+" FROM audit_logs WHERE tenant_id = ? ORDER BY id DESC LIMIT ?", tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, *toEntry(r))
	}
	return out, nil
}

const entryColumns = `id, tenant_id, user_id, action_type, module, description, old_value, new_value,
	ip_address, device_id, prev_hash, hash, created_at`

func (l *Ledger) lastHash(ctx context.Context, tenantID string) (string, error) {
	rows, err := l.db.Query(ctx,
		"SELECT hash FROM audit_logs WHERE tenant_id = ? ORDER BY id DESC LIMIT 1", tenantID)
	if err != nil {
		return "", fmt.Errorf("read chain head: %w", err)
	}
	if len(rows) == 0 {
		return GenesisHash, nil
	}
	return rows[0].String("hash"), nil
}

func toEntry(r storage.Row) *Entry {
	e := &Entry{
		ID:          r.Int64("id"),
		TenantID:    r.String("tenant_id"),
		UserID:      r.String("user_id"),
		ActionType:  r.String("action_type"),
		Module:      r.String("module"),
		Description: r.String("description"),
		IPAddress:   r.String("ip_address"),
		DeviceID:    r.String("device_id"),
		PrevHash:    r.String("prev_hash"),
		Hash:        r.String("hash"),
		CreatedAt:   r.Time("created_at"),
	}
	if v := r.String("old_value"); v != "" {
		e.OldValue = []byte(v)
	}
	if v := r.String("new_value"); v != "" {
		e.NewValue = []byte(v)
	}
	return e
}

func nullable(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
