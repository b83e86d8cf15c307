package sync

import (
	"time"

	"paysync/internal/domain/batch"
	"paysync/internal/domain/mode"
)

// Одна строка синхронизируемой сущности по именам колонок.
type Record map[string]any

// Заголовок пакета.
type Metadata struct {
	BatchID     string    `json:"batchId"`
	TenantID    string    `json:"tenantId"`
	DeviceID    string    `json:"deviceId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"recordCount"`
	// Максимальный updated_at в пакете (или since для пустого пакета).
	Watermark int64 `json:"watermark"`
}

// Набор изменений одного направления синхронизации.
type Bundle struct {
	Metadata Metadata            `json:"metadata"`
	Data     map[string][]Record `json:"data"`
}

// UUIDs группирует идентификаторы записей пакета по сущностям.
func (b *Bundle) UUIDs() map[string][]string {
	out := make(map[string][]string, len(b.Data))
	for table, records := range b.Data {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			if id, ok := r["uuid"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
		out[table] = ids
	}
	return out
}

// Общее число записей в пакете.
func (b *Bundle) Count() int {
	n := 0
	for _, records := range b.Data {
		n += len(records)
	}
	return n
}

// Итог отправки локальных изменений.
type PushResult struct {
	Success       bool   `json:"success"`
	BatchID       string `json:"batchId"`
	RecordsSynced int    `json:"recordsSynced"`
	TenantID      string `json:"tenantId"`
}

// Итог применения входящего пакета. Конфликты и пропуск
// уже примененного пакета входят в результат, а не в ошибку.
type ApplyResult struct {
	Success   bool   `json:"success"`
	BatchID   string `json:"batchId"`
	Applied   int    `json:"applied"`
	Conflicts int    `json:"conflicts"`
	Errors    int    `json:"errors"`
	Skipped   bool   `json:"skipped"`
	TenantID  string `json:"tenantId"`
}

// Состояние синхронизации тенанта.
type StatusResult struct {
	LastSyncTime  *time.Time    `json:"lastSyncTime"`
	TenantID      string        `json:"tenantId"`
	Mode          mode.Mode     `json:"mode"`
	ActiveSyncs   int           `json:"activeSyncs"`
	Backend       string        `json:"backend"`
	RecentBatches []batch.Batch `json:"recentBatches"`
}

// Итог ручного сброса блокировки.
type ResetResult struct {
	Success bool      `json:"success"`
	Mode    mode.Mode `json:"mode"`
}

// Параметры движка.
type Config struct {
	DeviceID       string
	TxDrainTimeout time.Duration
}
