package sync

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionFailure  = errors.New("sync transaction failed")
	ErrSyncInProgress      = errors.New("synchronization already in progress for tenant")
	ErrRemoteNotConfigured = errors.New("remote authority is not configured")
	ErrInvalidBundle       = errors.New("invalid sync bundle")
	ErrTenantRequired      = errors.New("tenant id is required")
	ErrUnknownEntity       = errors.New("unknown syncable entity")
	ErrRemoteRejected      = errors.New("remote rejected bundle")
)

// Пакет не применен и помечен FAILED. BatchID позволяет
// найти подробности в трейле.
type TransactionError struct {
	BatchID string
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("batch %s: %v", e.BatchID, e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailure, e.Err}
}
