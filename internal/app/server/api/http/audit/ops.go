package audit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) verifyOp() huma.Operation {
	return huma.Operation{
		OperationID: "audit-verify",
		Method:      http.MethodGet,
		Path:        "/api/audit/verify",
		Summary:     "Проверить целостность журнала аудита",
		Description: "Пересчитывает хэш-цепочку и возвращает записи, на которых она нарушена",
		Tags:        []string{"audit"},
		Middlewares: h.middleware,
		Security:    []map[string][]string{{"bearer": {}}},
	}
}

func (h *Handler) entriesOp() huma.Operation {
	return huma.Operation{
		OperationID: "audit-entries",
		Method:      http.MethodGet,
		Path:        "/api/audit/entries",
		Summary:     "Последние записи журнала аудита",
		Tags:        []string{"audit"},
		Middlewares: h.middleware,
		Security:    []map[string][]string{{"bearer": {}}},
	}
}
