package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"paysync/internal/domain/mode"
)

// StateReader отдает текущий режим и активный бэкенд.
type StateReader interface {
	Mode() mode.Mode
	BackendName() string
}

type Handler struct {
	state      StateReader
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(state StateReader, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		state:      state,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(_ context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	resp := Response{Status: "OK"}
	if h.state != nil {
		resp.Mode = h.state.Mode().String()
		resp.Backend = h.state.BackendName()
	}

	return &Output{Body: resp}, nil
}
