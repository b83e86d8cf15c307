package sync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"

	"paysync/internal/domain/batch"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/router"
)

// Исход одной записи пакета.
type outcome struct {
	action  batch.Action
	message string
}

// Общий путь применения входящего пакета для Pull и Ingest.
func (s *Service) apply(ctx context.Context, bundle *Bundle, tenantID string, direction batch.Direction) (*ApplyResult, error) {
	if bundle == nil || bundle.Metadata.BatchID == "" {
		return nil, fmt.Errorf("%w: missing batch id", ErrInvalidBundle)
	}
	if bundle.Metadata.TenantID != "" && bundle.Metadata.TenantID != tenantID {
		return nil, fmt.Errorf("%w: bundle tenant %q does not match %q", ErrInvalidBundle, bundle.Metadata.TenantID, tenantID)
	}

	batchID := bundle.Metadata.BatchID
	result := &ApplyResult{BatchID: batchID, TenantID: tenantID}
	log := s.log.With(slog.String("batch_id", batchID), slog.String("tenant_id", tenantID))

	existing, err := s.ledger.Get(ctx, s.store.Session(true), batchID)
	switch {
	case err == nil && existing.TenantID != tenantID:
		return nil, batch.ErrBatchOwnership
	case err == nil && existing.Done():
		log.Info("batch already processed, skipping")
		result.Success = true
		result.Skipped = true
		return result, nil
	case err != nil && !errors.Is(err, batch.ErrBatchNotFound):
		return nil, err
	}

	b := &batch.Batch{
		BatchID:     batchID,
		TenantID:    tenantID,
		Direction:   direction,
		Status:      batch.StatusProcessing,
		RecordCount: bundle.Count(),
		Watermark:   bundle.Metadata.Watermark,
	}

	err = s.withTx(ctx, func(conn *router.Conn) error {
		if err := s.ledger.Begin(ctx, conn, b); err != nil {
			return err
		}

		for _, table := range orderedTables(bundle.Data) {
			ent, known := lookupEntity(table)
			for _, rec := range bundle.Data[table] {
				var out outcome
				if known {
					var err error
					out, err = s.applyRecord(ctx, conn, ent, rec, tenantID)
					if err != nil {
						return err
					}
				} else {
					out = outcome{action: batch.ActionError, message: ErrUnknownEntity.Error()}
				}

				if ts, ok := storage.ToInt64(normalizeValue(rec["updated_at"])); ok && ts > b.Watermark {
					b.Watermark = ts
				}

				switch out.action {
				case batch.ActionInsert, batch.ActionUpdate:
					result.Applied++
				case batch.ActionConflictIgnored:
					result.Conflicts++
				case batch.ActionError:
					result.Errors++
				}

				if err := s.ledger.AppendTrail(ctx, conn, batch.TrailEntry{
					BatchID:    batchID,
					Table:      table,
					RecordUUID: recordUUID(rec),
					Action:     out.action,
					Status:     trailStatus(out.action),
					Message:    out.message,
				}); err != nil {
					return err
				}
			}
		}

		return s.ledger.MarkSuccess(ctx, conn, batchID, b.RecordCount, b.Watermark)
	})
	if err != nil {
		return nil, s.fail(ctx, b, err)
	}

	log.Info("bundle applied",
		slog.String("direction", string(direction)),
		slog.Int("applied", result.Applied),
		slog.Int("conflicts", result.Conflicts),
		slog.Int("errors", result.Errors),
	)
	result.Success = true
	return result, nil
}

// applyRecord разрешает и записывает одну запись. Ошибка валидации записи
// становится исходом ERROR, ошибка БД возвращается и откатывает весь пакет.
func (s *Service) applyRecord(ctx context.Context, q storage.Querier, ent Entity, rec Record, tenantID string) (outcome, error) {
	id := recordUUID(rec)
	if id == "" {
		return outcome{action: batch.ActionError, message: "missing uuid"}, nil
	}
	if t, ok := rec["tenant_id"]; ok && t != nil && fmt.Sprint(t) != tenantID {
		return outcome{action: batch.ActionError, message: "tenant mismatch"}, nil
	}
	ver, ok := storage.ToInt64(normalizeValue(rec["sync_version"]))
	if !ok || ver < 1 {
		return outcome{action: batch.ActionError, message: "invalid sync_version"}, nil
	}
	updatedAt, ok := storage.ToInt64(normalizeValue(rec["updated_at"]))
	if !ok {
		return outcome{action: batch.ActionError, message: "invalid updated_at"}, nil
	}
	incoming := version{SyncVersion: ver, UpdatedAt: updatedAt}

	rows, err := q.Query(ctx,
		"SELECT sync_version, updated_at FROM "+ent.Table+" WHERE uuid = ? AND tenant_id = ? FOR UPDATE",
		id, tenantID)
	if err != nil {
		return outcome{}, fmt.Errorf("lookup %s %s: %w", ent.Table, id, err)
	}
	var local *version
	if len(rows) > 0 {
		local = &version{SyncVersion: rows[0].Int64("sync_version"), UpdatedAt: rows[0].Int64("updated_at")}
	}

	action := resolve(local, incoming)
	if action == batch.ActionConflictIgnored {
		return outcome{
			action: action,
			message: fmt.Sprintf("local version %d (updated_at %d) kept over incoming version %d (updated_at %d)",
				local.SyncVersion, local.UpdatedAt, incoming.SyncVersion, incoming.UpdatedAt),
		}, nil
	}

	cols, args := upsertArgs(ent, rec, tenantID, updatedAt)
	n, err := q.Exec(ctx, ent.upsertQuery(cols), args...)
	if err != nil {
		return outcome{}, fmt.Errorf("upsert %s %s: %w", ent.Table, id, err)
	}
	if n == 0 {
		// uuid занят записью другого тенанта
		return outcome{action: batch.ActionError, message: "uuid belongs to another tenant"}, nil
	}
	return outcome{action: action}, nil
}

// Колонки и значения для upsert. Метаданные заполняются всегда,
// бизнес-колонки берутся только присутствующие в записи.
func upsertArgs(ent Entity, rec Record, tenantID string, updatedAt int64) ([]string, []any) {
	createdAt, ok := storage.ToInt64(normalizeValue(rec["created_at"]))
	if !ok {
		createdAt = updatedAt
	}
	deviceID, _ := rec["device_id"].(string)

	cols := []string{"uuid", "tenant_id", "device_id", "sync_version", "is_synced", "created_at", "updated_at"}
	args := []any{
		recordUUID(rec),
		tenantID,
		deviceID,
		normalizeValue(rec["sync_version"]),
		int64(1),
		createdAt,
		updatedAt,
	}

	if v, ok := rec["deleted_at"]; ok {
		cols = append(cols, "deleted_at")
		args = append(args, normalizeValue(v))
	}
	for _, c := range ent.Columns {
		if v, ok := rec[c]; ok {
			cols = append(cols, c)
			args = append(args, normalizeValue(v))
		}
	}
	return cols, args
}

func recordUUID(rec Record) string {
	id, _ := rec["uuid"].(string)
	return id
}

func trailStatus(a batch.Action) batch.TrailStatus {
	switch a {
	case batch.ActionInsert, batch.ActionUpdate:
		return batch.TrailApplied
	case batch.ActionConflictIgnored:
		return batch.TrailSkipped
	default:
		return batch.TrailFailed
	}
}
