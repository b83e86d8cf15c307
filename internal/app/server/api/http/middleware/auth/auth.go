package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"

	"paysync/internal/domain/audit"
)

const (
	TenantHeader = "X-Tenant-ID"
	UserHeader   = "X-User-ID"
)

type contextKey string

const TenantIDKey contextKey = "tenantID"

// Middleware тенанта, устройства и оператора.
type Auth struct {
	operatorHash []byte
	deviceHash   []byte
	log          *slog.Logger
}

// New принимает bcrypt-хэши операторского токена и токена устройств.
// Пустой хэш отключает соответствующую проверку.
func New(operatorTokenHash, deviceTokenHash string, log *slog.Logger) *Auth {
	a := &Auth{
		operatorHash: []byte(operatorTokenHash),
		deviceHash:   []byte(deviceTokenHash),
		log:          log.With(slog.String("component", "auth_middleware")),
	}
	if operatorTokenHash == "" {
		a.log.Warn("operator token hash is not configured, operator endpoints are unprotected")
	}
	if deviceTokenHash == "" && operatorTokenHash == "" {
		a.log.Warn("device token hash is not configured, bundle endpoints are unprotected")
	}
	return a
}

// Tenant требует заголовок X-Tenant-ID и кладет тенанта и инициатора в контекст.
func (a *Auth) Tenant() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		tenantID := strings.TrimSpace(ctx.Header(TenantHeader))
		if tenantID == "" {
			a.log.Debug("request without tenant", slog.String("path", ctx.URL().Path))
			a.reject(ctx, http.StatusBadRequest, "missing "+TenantHeader+" header")
			return
		}

		userID := ctx.Header(UserHeader)
		if userID == "" {
			userID = "anonymous"
		}

		newCtx := WithTenantID(ctx.Context(), tenantID)
		newCtx = audit.WithActor(newCtx, audit.Actor{UserID: userID, IPAddress: clientIP(ctx.RemoteAddr())})

		next(huma.WithContext(ctx, newCtx))
	}
}

// Operator сверяет Bearer-токен с bcrypt-хэшем оператора.
func (a *Auth) Operator() func(huma.Context, func(huma.Context)) {
	return a.bearer("operator", a.operatorHash)
}

// Device пускает к обмену пакетами по токену устройства или оператора.
func (a *Auth) Device() func(huma.Context, func(huma.Context)) {
	return a.bearer("device", a.deviceHash, a.operatorHash)
}

// bearer пропускает запрос, если токен подходит к любому из непустых хэшей.
// Если непустых хэшей нет, проверка отключена.
func (a *Auth) bearer(role string, hashes ...[]byte) func(huma.Context, func(huma.Context)) {
	var configured [][]byte
	for _, h := range hashes {
		if len(h) > 0 {
			configured = append(configured, h)
		}
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		if len(configured) == 0 {
			next(ctx)
			return
		}

		token := ctx.Header("Authorization")
		if len(token) < 7 || token[:7] != "Bearer " {
			a.reject(ctx, http.StatusUnauthorized, "Unauthorized")
			return
		}

		for _, h := range configured {
			if bcrypt.CompareHashAndPassword(h, []byte(token[7:])) == nil {
				next(ctx)
				return
			}
		}

		a.log.Warn(role+" token rejected", slog.String("remote_addr", ctx.RemoteAddr()))
		a.reject(ctx, http.StatusForbidden, "Forbidden")
	}
}

func (a *Auth) reject(ctx huma.Context, status int, msg string) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(status)

	if err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{"error": msg}); err != nil {
		a.log.Error("json encode", slog.String("error", err.Error()))
	}
}

// WithTenantID кладет тенанта в контекст.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// GetTenantID возвращает тенанта, установленного middleware Tenant.
func GetTenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(string)
	return tenantID, ok && tenantID != ""
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
