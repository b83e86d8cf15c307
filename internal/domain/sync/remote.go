package sync

import "context"

// Транспорт до удаленного сервера-источника истины.
type Remote interface {
	// SendBundle передает локальные изменения, сервер применяет их как входящий пакет.
	SendBundle(ctx context.Context, bundle *Bundle) (*ApplyResult, error)
	// FetchBundle забирает изменения тенанта с updated_at > since.
	FetchBundle(ctx context.Context, tenantID string, since int64) (*Bundle, error)
}
