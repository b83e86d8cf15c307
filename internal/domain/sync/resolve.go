package sync

import "paysync/internal/domain/batch"

// То, по чему сравниваются локальная и входящая копии записи.
type version struct {
	SyncVersion int64
	UpdatedAt   int64
}

// resolve решает судьбу входящей записи. Сначала сравнивается sync_version,
// updated_at разрешает только ничью по версии. local == nil: записи нет.
func resolve(local *version, incoming version) batch.Action {
	if local == nil {
		return batch.ActionInsert
	}
	switch {
	case incoming.SyncVersion > local.SyncVersion:
		return batch.ActionUpdate
	case incoming.SyncVersion == local.SyncVersion && incoming.UpdatedAt > local.UpdatedAt:
		return batch.ActionUpdate
	default:
		return batch.ActionConflictIgnored
	}
}
