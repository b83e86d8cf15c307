package audit

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"paysync/internal/app/server/api/http/middleware/auth"
	"paysync/internal/domain/audit"
)

// Операции журнала аудита, доступные оператору.
type Reader interface {
	Verify(ctx context.Context, tenantID string) (*audit.Report, error)
	Entries(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error)
}

type Handler struct {
	ledger     Reader
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(ledger Reader, log *slog.Logger, middleware huma.Middlewares) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ledger:     ledger,
		log:        log.With(slog.String("component", "audit_handler")),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.verifyOp(), h.verify)
	huma.Register(api, h.entriesOp(), h.entries)
}

func (h *Handler) verify(ctx context.Context, input *verifyInput) (*verifyOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, huma.Error400BadRequest("tenant is not set")
	}
	if input.All {
		tenantID = ""
	}

	report, err := h.ledger.Verify(ctx, tenantID)
	if err != nil {
		h.log.Error("audit verify failed", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("audit verification failed")
	}
	if !report.Valid {
		h.log.Warn("audit chain integrity violated",
			slog.String("tenant_id", tenantID),
			slog.Int("issues", len(report.Issues)),
		)
	}
	return &verifyOutput{Body: *report}, nil
}

func (h *Handler) entries(ctx context.Context, input *entriesInput) (*entriesOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, huma.Error400BadRequest("tenant is not set")
	}

	entries, err := h.ledger.Entries(ctx, tenantID, input.Limit)
	if err != nil {
		h.log.Error("audit entries failed", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("failed to read audit log")
	}
	return &entriesOutput{Body: EntriesResponse{TenantID: tenantID, Entries: entries}}, nil
}
