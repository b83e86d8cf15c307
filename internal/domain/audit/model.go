package audit

import (
	"encoding/json"
	"time"
)

// Prev_hash первой записи цепочки тенанта.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Коды причин нарушения цепочки.
const (
	ReasonPrevHashMismatch = "PREV_HASH_MISMATCH"
	ReasonHashMismatch     = "HASH_MISMATCH"
)

const ModuleSync = "sync"

const (
	ActionSyncPush   = "SYNC_PUSH"
	ActionSyncPull   = "SYNC_PULL"
	ActionSyncIngest = "SYNC_INGEST"
	ActionSyncFailed = "SYNC_FAILED"
	ActionSyncReset  = "SYNC_RESET"
)

// Неизменяемая запись журнала аудита.
type Entry struct {
	ID          int64           `json:"id"`
	TenantID    string          `json:"tenantId"`
	UserID      string          `json:"userId"`
	ActionType  string          `json:"actionType"`
	Module      string          `json:"module"`
	Description string          `json:"description"`
	OldValue    json.RawMessage `json:"oldValue,omitempty"`
	NewValue    json.RawMessage `json:"newValue,omitempty"`
	IPAddress   string          `json:"ipAddress"`
	DeviceID    string          `json:"deviceId"`
	PrevHash    string          `json:"prevHash"`
	Hash        string          `json:"hash"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Запись, на которой сломалась цепочка.
type Issue struct {
	EntryID  int64  `json:"entryId"`
	TenantID string `json:"tenantId"`
	Reason   string `json:"reason"`
}

// Итог проверки целостности.
type Report struct {
	Valid  bool    `json:"valid"`
	Count  int     `json:"count"`
	Issues []Issue `json:"issues"`
}

// Snapshot сериализует значение для OldValue/NewValue. nil дает пустой снимок.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
