package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) pushOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-push",
		Method:      http.MethodPost,
		Path:        "/api/sync/push",
		Summary:     "Отправить локальные изменения",
		Description: "Собирает несинхронизированные записи тенанта и передает их удаленному серверу",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) pullOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-pull",
		Method:      http.MethodPost,
		Path:        "/api/sync/pull",
		Summary:     "Забрать изменения с сервера",
		Description: "Забирает изменения с последнего успешного PULL и применяет их локально",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) statusOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/api/sync/status",
		Summary:     "Статус синхронизации",
		Description: "Время последнего успешного обмена, режим и последние пакеты тенанта",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) resetOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-reset",
		Method:      http.MethodPost,
		Path:        "/api/sync/reset",
		Summary:     "Сбросить блокировку синхронизации",
		Description: "Принудительно снимает режим SYNCING. Только для оператора",
		Tags:        []string{"sync"},
		Middlewares: h.operatorMiddleware,
		Security:    []map[string][]string{{"bearer": {}}},
	}
}

func (h *Handler) trailOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-batch-trail",
		Method:      http.MethodGet,
		Path:        "/api/sync/batches/{id}/trail",
		Summary:     "Трейл пакета",
		Description: "Исход каждой записи пакета",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) ingestOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-bundle-ingest",
		Method:      http.MethodPost,
		Path:        "/api/sync/bundles",
		Summary:     "Принять пакет устройства",
		Description: "Применяет пакет изменений, присланный устройством",
		Tags:        []string{"bundles"},
		Middlewares: h.deviceMiddleware,
		Security:    []map[string][]string{{"bearer": {}}},
	}
}

func (h *Handler) exportOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-bundle-export",
		Method:      http.MethodGet,
		Path:        "/api/sync/bundles",
		Summary:     "Выгрузить пакет для устройства",
		Description: "Возвращает записи тенанта, измененные после since",
		Tags:        []string{"bundles"},
		Middlewares: h.deviceMiddleware,
		Security:    []map[string][]string{{"bearer": {}}},
	}
}
