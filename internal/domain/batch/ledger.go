package batch

import (
	"context"
	"fmt"
	"time"

	"paysync/internal/infrastructure/storage"
)

// Журнал пакетов и трейл записей. Все методы принимают Querier,
// чтобы работать и внутри транзакции пакета, и вне ее.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

const batchColumns = `batch_id, tenant_id, direction, status, record_count, watermark, started_at, completed_at, error_message`

// Begin регистрирует пакет. Повторная регистрация незавершенного пакета
// сбрасывает его состояние, успешный пакет не трогается.
func (l *Ledger) Begin(ctx context.Context, q storage.Querier, b *Batch) error {
	if b.Status == "" {
		b.Status = StatusPending
	}
	b.StartedAt = l.now()
	b.CompletedAt = nil
	b.ErrorMessage = ""

	_, err := q.Exec(ctx,
		`INSERT INTO sync_batches (batch_id, tenant_id, direction, status, record_count, watermark, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (batch_id) DO UPDATE SET
			status = EXCLUDED.status,
			record_count = EXCLUDED.record_count,
			watermark = EXCLUDED.watermark,
			started_at = EXCLUDED.started_at,
			completed_at = NULL,
			error_message = NULL
		 WHERE sync_batches.status <> 'SUCCESS' AND sync_batches.tenant_id = EXCLUDED.tenant_id`,
		b.BatchID, b.TenantID, string(b.Direction), string(b.Status), b.RecordCount, b.Watermark, b.StartedAt)
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", b.BatchID, err)
	}
	return nil
}

// MarkProcessing отмечает пакет, ушедший на удаленный сервер.
func (l *Ledger) MarkProcessing(ctx context.Context, q storage.Querier, batchID string) error {
	_, err := q.Exec(ctx,
		"UPDATE sync_batches SET status = ? WHERE batch_id = ? AND status <> ?",
		string(StatusProcessing), batchID, string(StatusSuccess))
	if err != nil {
		return fmt.Errorf("mark batch %s processing: %w", batchID, err)
	}
	return nil
}

// MarkSuccess фиксирует итог пакета. Должен выполняться в той же транзакции,
// что и сами записи.
func (l *Ledger) MarkSuccess(ctx context.Context, q storage.Querier, batchID string, recordCount int, watermark int64) error {
	n, err := q.Exec(ctx,
		`UPDATE sync_batches
		 SET status = ?, record_count = ?, watermark = ?, completed_at = ?, error_message = NULL
		 WHERE batch_id = ?`,
		string(StatusSuccess), recordCount, watermark, l.now(), batchID)
	if err != nil {
		return fmt.Errorf("mark batch %s success: %w", batchID, err)
	}
	if n == 0 {
		return fmt.Errorf("mark batch %s success: %w", batchID, ErrBatchNotFound)
	}
	return nil
}

// MarkFailed записывает ошибку пакета. Выполняется после отката транзакции,
// поэтому строки пакета может не быть: она создается заново.
func (l *Ledger) MarkFailed(ctx context.Context, q storage.Querier, b *Batch, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := l.now()
	started := b.StartedAt
	if started.IsZero() {
		started = now
	}

	_, err := q.Exec(ctx,
		`INSERT INTO sync_batches (batch_id, tenant_id, direction, status, record_count, watermark, started_at, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (batch_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message
		 WHERE sync_batches.status <> 'SUCCESS' AND sync_batches.tenant_id = EXCLUDED.tenant_id`,
		b.BatchID, b.TenantID, string(b.Direction), string(StatusFailed), b.RecordCount, b.Watermark, started, now, msg)
	if err != nil {
		return fmt.Errorf("mark batch %s failed: %w", b.BatchID, err)
	}

	b.Status = StatusFailed
	b.CompletedAt = &now
	b.ErrorMessage = msg
	return nil
}

func (l *Ledger) Get(ctx context.Context, q storage.Querier, batchID string) (*Batch, error) {
	rows, err := q.Query(ctx, "SELECT "+batchColumns+" FROM sync_batches WHERE batch_id = ?", batchID)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	if len(rows) == 0 {
		return nil, ErrBatchNotFound
	}
	return toBatch(rows[0]), nil
}

// Последние n пакетов тенанта, новые первыми.
func (l *Ledger) Recent(ctx context.Context, q storage.Querier, tenantID string, n int) ([]Batch, error) {
	rows, err := q.Query(ctx,
		"SELECT "+batchColumns+" FROM sync_batches WHERE tenant_id = ? ORDER BY started_at DESC, batch_id DESC LIMIT ?",
		tenantID, n)
	if err != nil {
		return nil, fmt.Errorf("recent batches: %w", err)
	}
	out := make([]Batch, 0, len(rows))
	for _, r := range rows {
		out = append(out, *toBatch(r))
	}
	return out, nil
}

// Последний успешный пакет тенанта в направлении. nil, если таких нет.
func (l *Ledger) LastSuccess(ctx context.Context, q storage.Querier, tenantID string, direction Direction) (*Batch, error) {
	rows, err := q.Query(ctx,
		"SELECT "+batchColumns+` FROM sync_batches
		 WHERE tenant_id = ? AND direction = ? AND status = ?
		 ORDER BY completed_at DESC, started_at DESC LIMIT 1`,
		tenantID, string(direction), string(StatusSuccess))
	if err != nil {
		return nil, fmt.Errorf("last successful batch: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toBatch(rows[0]), nil
}

func (l *Ledger) AppendTrail(ctx context.Context, q storage.Querier, entries ...TrailEntry) error {
	for _, e := range entries {
		var msg any
		if e.Message != "" {
			msg = e.Message
		}
		_, err := q.Exec(ctx,
			`INSERT INTO sync_trail (batch_id, table_name, record_uuid, action, status, message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.BatchID, e.Table, e.RecordUUID, string(e.Action), string(e.Status), msg, l.now())
		if err != nil {
			return fmt.Errorf("append trail for %s/%s: %w", e.Table, e.RecordUUID, err)
		}
	}
	return nil
}

func (l *Ledger) Trail(ctx context.Context, q storage.Querier, batchID string) ([]TrailEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT id, batch_id, table_name, record_uuid, action, status, message, created_at
		 FROM sync_trail WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch trail %s: %w", batchID, err)
	}
	out := make([]TrailEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, TrailEntry{
			ID:         r.Int64("id"),
			BatchID:    r.String("batch_id"),
			Table:      r.String("table_name"),
			RecordUUID: r.String("record_uuid"),
			Action:     Action(r.String("action")),
			Status:     TrailStatus(r.String("status")),
			Message:    r.String("message"),
			CreatedAt:  r.Time("created_at"),
		})
	}
	return out, nil
}

func toBatch(r storage.Row) *Batch {
	b := &Batch{
		BatchID:      r.String("batch_id"),
		TenantID:     r.String("tenant_id"),
		Direction:    Direction(r.String("direction")),
		Status:       Status(r.String("status")),
		RecordCount:  int(r.Int64("record_count")),
		Watermark:    r.Int64("watermark"),
		StartedAt:    r.Time("started_at"),
		ErrorMessage: r.String("error_message"),
	}
	if t := r.Time("completed_at"); !t.IsZero() {
		b.CompletedAt = &t
	}
	return b
}
