package health

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) healthCheckOp() huma.Operation {
	return huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Состояние узла",
		Description: "Возвращает OK, текущий режим (ONLINE, OFFLINE, SYNCING) и бэкенд, обслуживающий обычные запросы. Используется пробами удаленных установок",
		Tags:        []string{"health"},
		Middlewares: h.middleware,
	}
}
