package mode

import "time"

// Режим работы процесса. SYNCING имеет приоритет над ONLINE/OFFLINE.
type Mode string

const (
	Offline Mode = "OFFLINE"
	Online  Mode = "ONLINE"
	Syncing Mode = "SYNCING"
)

func (m Mode) String() string { return string(m) }

// SyncToken выдается EnterSync и возвращается в ExitSync. Токен, выданный до
// принудительного сброса блокировки, после сброса ничего не меняет.
type SyncToken struct {
	generation uint64
}

// Состояние менеджера на момент вызова.
type Snapshot struct {
	Mode        Mode      `json:"mode"`
	Online      bool      `json:"online"`
	ActiveSyncs int       `json:"active_syncs"`
	LockedSince time.Time `json:"locked_since,omitempty"`
}
