package batch

import "time"

// Направление пакета синхронизации.
type Direction string

const (
	DirectionPush Direction = "PUSH"
	DirectionPull Direction = "PULL"
)

// Состояние пакета в журнале.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Исход применения одной записи.
type Action string

const (
	ActionInsert          Action = "INSERT"
	ActionUpdate          Action = "UPDATE"
	ActionConflictIgnored Action = "CONFLICT_IGNORED"
	ActionError           Action = "ERROR"
)

// Итог записи в трейле.
type TrailStatus string

const (
	TrailApplied TrailStatus = "APPLIED"
	TrailSkipped TrailStatus = "SKIPPED"
	TrailFailed  TrailStatus = "FAILED"
)

// Строка журнала пакетов (sync_batches).
type Batch struct {
	BatchID      string     `json:"batchId"`
	TenantID     string     `json:"tenantId"`
	Direction    Direction  `json:"direction"`
	Status       Status     `json:"status"`
	RecordCount  int        `json:"recordCount"`
	Watermark    int64      `json:"watermark"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Пакет полностью применен, повторная подача ничего не делает.
func (b *Batch) Done() bool {
	return b != nil && b.Status == StatusSuccess
}

// Исход одной записи в пакете. После вставки не меняется.
type TrailEntry struct {
	ID         int64       `json:"id"`
	BatchID    string      `json:"batchId"`
	Table      string      `json:"table"`
	RecordUUID string      `json:"uuid"`
	Action     Action      `json:"action"`
	Status     TrailStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}
