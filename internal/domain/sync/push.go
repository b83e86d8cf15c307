package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"paysync/internal/domain/batch"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/router"
)

// markChunk ограничивает длину списка в IN (...).
const markChunk = 500

// BuildPushBundle собирает записи тенанта, которые не отправлены или изменены
// после since, и регистрирует пакет в журнале.
func (s *Service) BuildPushBundle(ctx context.Context, since int64, tenantID string) (*Bundle, error) {
	q := s.store.Session(true)
	bundle := &Bundle{
		Metadata: Metadata{
			BatchID:   uuid.NewString(),
			TenantID:  tenantID,
			DeviceID:  s.cfg.DeviceID,
			Timestamp: s.now(),
			Watermark: since,
		},
		Data: make(map[string][]Record, len(registry)),
	}

	for _, ent := range registry {
		rows, err := q.Query(ctx,
			fmt.Sprintf(`SELECT %s FROM %s
			 WHERE tenant_id = ? AND (is_synced = 0 OR updated_at > ?)
			 ORDER BY updated_at, uuid`, strings.Join(ent.selectColumns(), ", "), ent.Table),
			tenantID, since)
		if err != nil {
			return nil, fmt.Errorf("select %s changes: %w", ent.Table, err)
		}

		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, ent.toRecord(row))
			if ts := row.Int64("updated_at"); ts > bundle.Metadata.Watermark {
				bundle.Metadata.Watermark = ts
			}
		}
		bundle.Data[ent.Table] = records
		bundle.Metadata.RecordCount += len(records)
	}

	err := s.ledger.Begin(ctx, q, &batch.Batch{
		BatchID:     bundle.Metadata.BatchID,
		TenantID:    tenantID,
		Direction:   batch.DirectionPush,
		Status:      batch.StatusPending,
		RecordCount: bundle.Metadata.RecordCount,
		Watermark:   bundle.Metadata.Watermark,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("push bundle built",
		slog.String("batch_id", bundle.Metadata.BatchID),
		slog.String("tenant_id", tenantID),
		slog.Int("records", bundle.Metadata.RecordCount),
	)
	return bundle, nil
}

// MarkAsSynced подтверждает отправленный пакет: is_synced = 1 ровно на
// переданных строках и SUCCESS у пакета, в одной транзакции.
func (s *Service) MarkAsSynced(ctx context.Context, batchID string, uuidsByEntity map[string][]string, tenantID string) error {
	total := 0
	err := s.withTx(ctx, func(conn *router.Conn) error {
		b, err := s.ledger.Get(ctx, conn, batchID)
		if err != nil {
			return err
		}
		if b.TenantID != tenantID {
			return batch.ErrBatchOwnership
		}

		for table, ids := range uuidsByEntity {
			ent, ok := lookupEntity(table)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownEntity, table)
			}
			if err := markSynced(ctx, conn, ent, tenantID, ids); err != nil {
				return err
			}
			total += len(ids)
		}

		if err := s.ledger.MarkSuccess(ctx, conn, batchID, total, b.Watermark); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, &batch.Batch{
			BatchID:     batchID,
			TenantID:    tenantID,
			Direction:   batch.DirectionPush,
			RecordCount: total,
		}, err)
	}
	return nil
}

func markSynced(ctx context.Context, q storage.Querier, ent Entity, tenantID string, ids []string) error {
	for start := 0; start < len(ids); start += markChunk {
		end := start + markChunk
		if end > len(ids) {
			end = len(ids)
		}
		_, err := q.Exec(ctx,
			"UPDATE "+ent.Table+" SET is_synced = 1 WHERE tenant_id = ? AND uuid IN (?)",
			tenantID, ids[start:end])
		if err != nil {
			return fmt.Errorf("mark %s synced: %w", ent.Table, err)
		}
	}
	return nil
}
