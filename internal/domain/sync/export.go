package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Пространство имен для детерминированных batch_id выгрузки.
var exportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("paysync/export"))

// Export собирает записи тенанта с updated_at > since для устройства (сторона сервера).
// Записи, последним писателем которых было само устройство excludeDevice, не выгружаются.
// batch_id выводится из содержимого: повторная выгрузка тех же версий
// получает тот же идентификатор и отбрасывается получателем как уже примененная.
func (s *Service) Export(ctx context.Context, tenantID string, since int64, excludeDevice string) (*Bundle, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	q := s.store.Session(true)

	bundle := &Bundle{
		Metadata: Metadata{
			TenantID:  tenantID,
			DeviceID:  s.cfg.DeviceID,
			Timestamp: s.now(),
			Watermark: since,
		},
		Data: make(map[string][]Record, len(registry)),
	}

	var fingerprint strings.Builder
	fmt.Fprintf(&fingerprint, "%s|%d|%s", tenantID, since, excludeDevice)

	for _, ent := range registry {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = ? AND updated_at > ?",
			strings.Join(ent.selectColumns(), ", "), ent.Table)
		args := []any{tenantID, since}
		if excludeDevice != "" {
			query += " AND device_id <> ?"
			args = append(args, excludeDevice)
		}
		query += " ORDER BY updated_at, uuid"

		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", ent.Table, err)
		}

		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, ent.toRecord(row))
			fingerprint.WriteString("|" + ent.Table + ":" + row.String("uuid") + ":" + row.String("sync_version") + ":" + row.String("updated_at"))
			if ts := row.Int64("updated_at"); ts > bundle.Metadata.Watermark {
				bundle.Metadata.Watermark = ts
			}
		}
		bundle.Data[ent.Table] = records
		bundle.Metadata.RecordCount += len(records)
	}

	bundle.Metadata.BatchID = uuid.NewSHA1(exportNamespace, []byte(fingerprint.String())).String()
	return bundle, nil
}
