package sync

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"paysync/internal/app/server/api/http/middleware/auth"
	"paysync/internal/domain/sync"
)

type Handler struct {
	service            sync.Servicer
	log                *slog.Logger
	middleware         huma.Middlewares
	deviceMiddleware   huma.Middlewares
	operatorMiddleware huma.Middlewares
}

// NewHandler: middleware для пользовательских ручек, deviceMiddleware для
// обмена пакетами, operatorMiddleware для сброса блокировки.
func NewHandler(service sync.Servicer, log *slog.Logger, middleware, deviceMiddleware, operatorMiddleware huma.Middlewares) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		service:            service,
		log:                log.With(slog.String("component", "sync_handler")),
		middleware:         middleware,
		deviceMiddleware:   deviceMiddleware,
		operatorMiddleware: operatorMiddleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.pushOp(), h.push)
	huma.Register(api, h.pullOp(), h.pull)
	huma.Register(api, h.statusOp(), h.status)
	huma.Register(api, h.resetOp(), h.reset)
	huma.Register(api, h.trailOp(), h.trail)
	huma.Register(api, h.ingestOp(), h.ingest)
	huma.Register(api, h.exportOp(), h.export)
}

func (h *Handler) push(ctx context.Context, input *pushInput) (*pushOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	res, err := h.service.Push(ctx, tenantID, input.Body.Since)
	if err != nil {
		h.log.Warn("push failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		return nil, toHTTPError(err)
	}
	return &pushOutput{Body: *res}, nil
}

func (h *Handler) pull(ctx context.Context, _ *pullInput) (*pullOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	res, err := h.service.Pull(ctx, tenantID)
	if err != nil {
		h.log.Warn("pull failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		return nil, toHTTPError(err)
	}
	return &pullOutput{Body: *res}, nil
}

func (h *Handler) status(ctx context.Context, _ *statusInput) (*statusOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	res, err := h.service.Status(ctx, tenantID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &statusOutput{Body: *res}, nil
}

func (h *Handler) reset(ctx context.Context, _ *resetInput) (*resetOutput, error) {
	tenantID, _ := auth.GetTenantID(ctx)

	res, err := h.service.Reset(ctx, tenantID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &resetOutput{Body: *res}, nil
}

func (h *Handler) trail(ctx context.Context, input *trailInput) (*trailOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	entries, err := h.service.Trail(ctx, tenantID, input.ID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &trailOutput{Body: TrailResponse{BatchID: input.ID, Entries: entries}}, nil
}

func (h *Handler) ingest(ctx context.Context, input *ingestInput) (*ingestOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	res, err := h.service.Ingest(ctx, &input.Body, tenantID)
	if err != nil {
		h.log.Warn("ingest failed",
			slog.String("tenant_id", tenantID),
			slog.String("batch_id", input.Body.Metadata.BatchID),
			slog.String("error", err.Error()),
		)
		return nil, toHTTPError(err)
	}
	return &ingestOutput{Body: *res}, nil
}

func (h *Handler) export(ctx context.Context, input *exportInput) (*exportOutput, error) {
	tenantID, ok := auth.GetTenantID(ctx)
	if !ok {
		return nil, errTenantMissing
	}

	bundle, err := h.service.Export(ctx, tenantID, input.Since, input.Device)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &exportOutput{Body: *bundle}, nil
}
