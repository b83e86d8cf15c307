package sync

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"paysync/internal/domain/batch"
	"paysync/internal/domain/sync"
	"paysync/internal/infrastructure/storage"
)

var errTenantMissing = huma.Error400BadRequest("tenant is not set")

// toHTTPError переводит ошибки движка в ответы API.
func toHTTPError(err error) error {
	var txErr *sync.TransactionError

	switch {
	case errors.Is(err, storage.ErrSyncLocked):
		return huma.NewError(http.StatusLocked, "synchronization in progress, retry later")
	case errors.Is(err, sync.ErrSyncInProgress):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, batch.ErrBatchOwnership):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, batch.ErrBatchNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, sync.ErrTenantRequired), errors.Is(err, sync.ErrInvalidBundle):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, sync.ErrRemoteNotConfigured):
		return huma.Error501NotImplemented(err.Error())
	case errors.As(err, &txErr):
		return huma.Error500InternalServerError(fmt.Sprintf("batch %s failed and was rolled back", txErr.BatchID), txErr.Err)
	case storage.IsConnectivityError(err):
		return huma.Error502BadGateway("remote is unreachable", err)
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
