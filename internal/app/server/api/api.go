// Маршруты сервера:
//
// GET  /api/v1/health                 # состояние, режим, бэкенд (публичный)
// POST /api/sync/push                 # отправить локальные изменения (tenant)
// POST /api/sync/pull                 # забрать изменения с сервера (tenant)
// GET  /api/sync/status               # статус синхронизации (tenant)
// POST /api/sync/reset                # сброс блокировки SYNCING (tenant + operator)
// GET  /api/sync/batches/{id}/trail   # трейл пакета (tenant)
// POST /api/sync/bundles              # прием пакета устройства (tenant + device)
// GET  /api/sync/bundles              # выгрузка пакета устройству (tenant + device)
// GET  /api/audit/verify              # проверка хэш-цепочки (tenant + operator)
// GET  /api/audit/entries             # последние записи аудита (tenant + operator)

package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	auditAPI "paysync/internal/app/server/api/http/audit"
	healthAPI "paysync/internal/app/server/api/http/health"
	"paysync/internal/app/server/api/http/middleware"
	"paysync/internal/app/server/api/http/middleware/auth"
	"paysync/internal/app/server/api/http/middleware/logger"
	syncAPI "paysync/internal/app/server/api/http/sync"
	"paysync/internal/domain/sync"
)

// Доменные сервисы, которые обслуживает API.
type Deps struct {
	State             healthAPI.StateReader
	Sync              sync.Servicer
	Audit             auditAPI.Reader
	OperatorTokenHash string
	DeviceTokenHash   string
}

type Handlers struct {
	Health *healthAPI.Handler
	Sync   *syncAPI.Handler
	Audit  *auditAPI.Handler
}

// New создает *chi.Mux со всеми операциями через huma.Register
func New(deps Deps, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()
	mux.Use(chimw.RequestID, chimw.Recoverer)

	config := huma.DefaultConfig("Paysync API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, config)

	h := handlers(deps, log)
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)
	h.Audit.SetupRoutes(API)

	return mux
}

func handlers(deps Deps, log *slog.Logger) *Handlers {
	authMW := auth.New(deps.OperatorTokenHash, deps.DeviceTokenHash, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := healthAPI.NewHandler(deps.State, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Tenant())
	syncMiddleware := middlewares.GetAllAndClear()

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Tenant())
	middlewares.Add(authMW.Device())
	deviceMiddleware := middlewares.GetAllAndClear()

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Tenant())
	middlewares.Add(authMW.Operator())
	syncHandler := syncAPI.NewHandler(deps.Sync, log, syncMiddleware, deviceMiddleware, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Tenant())
	middlewares.Add(authMW.Operator())
	auditHandler := auditAPI.NewHandler(deps.Audit, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Sync:   syncHandler,
		Audit:  auditHandler,
	}
}
