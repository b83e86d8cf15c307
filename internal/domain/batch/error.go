package batch

import "errors"

var (
	ErrBatchNotFound = errors.New("sync batch not found")
	// Batch_id уже занят пакетом другого тенанта.
	ErrBatchOwnership = errors.New("sync batch belongs to another tenant")
)
