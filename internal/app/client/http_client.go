package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/exp/slog"

	"paysync/internal/app/client/config"
	"paysync/internal/domain/audit"
	"paysync/internal/domain/batch"
	"paysync/internal/domain/sync"
)

const (
	tenantHeader = "X-Tenant-ID"
	userHeader   = "X-User-ID"
)

// Клиент API сервера. Также служит транспортом до удаленного
// сервера для движка синхронизации.
type HTTPClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	tenantID  string
	userID    string
	deviceID  string
	token     string
	userAgent string
}

var _ sync.Remote = (*HTTPClient)(nil)

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &HTTPClient{
		client:    client,
		log:       log,
		baseURL:   cfg.BaseURL(),
		tenantID:  cfg.TenantID,
		userID:    cfg.UserID,
		deviceID:  cfg.DeviceID,
		token:     cfg.OperatorToken,
		userAgent: "Paysync-Client/1.0",
	}
}

// SetToken устанавливает операторский токен
func (h *HTTPClient) SetToken(token string) {
	h.token = token
}

// SetTenant устанавливает тенанта по умолчанию
func (h *HTTPClient) SetTenant(tenantID string) {
	h.tenantID = tenantID
}

// HealthCheck проверяет доступность сервера
func (h *HTTPClient) HealthCheck(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", "", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

// Push просит сервер отправить локальные изменения тенанта.
func (h *HTTPClient) Push(ctx context.Context, since int64) (*sync.PushResult, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/push", h.tenantID, map[string]int64{"since": since})
	if err != nil {
		return nil, err
	}
	var out sync.PushResult
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pull просит сервер забрать изменения с удаленного сервера.
func (h *HTTPClient) Pull(ctx context.Context) (*sync.ApplyResult, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/pull", h.tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out sync.ApplyResult
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) Status(ctx context.Context) (*sync.StatusResult, error) {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/sync/status", h.tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out sync.StatusResult
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) Reset(ctx context.Context) (*sync.ResetResult, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/reset", h.tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out sync.ResetResult
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) Trail(ctx context.Context, batchID string) ([]batch.TrailEntry, error) {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/sync/batches/"+url.PathEscape(batchID)+"/trail", h.tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Entries []batch.TrailEntry `json:"entries"`
	}
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// VerifyAudit проверяет цепочку тенанта или, при all, всех тенантов.
func (h *HTTPClient) VerifyAudit(ctx context.Context, all bool) (*audit.Report, error) {
	path := "/api/audit/verify"
	if all {
		path += "?all=true"
	}
	resp, err := h.doRequest(ctx, http.MethodGet, path, h.tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out audit.Report
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendBundle передает пакет серверу-источнику истины.
func (h *HTTPClient) SendBundle(ctx context.Context, bundle *sync.Bundle) (*sync.ApplyResult, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/bundles", bundle.Metadata.TenantID, bundle)
	if err != nil {
		return nil, err
	}
	var out sync.ApplyResult
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchBundle забирает изменения тенанта, сделанные другими устройствами.
func (h *HTTPClient) FetchBundle(ctx context.Context, tenantID string, since int64) (*sync.Bundle, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	if h.deviceID != "" {
		q.Set("device", h.deviceID)
	}

	resp, err := h.doRequest(ctx, http.MethodGet, "/api/sync/bundles?"+q.Encode(), tenantID, nil)
	if err != nil {
		return nil, err
	}
	var out sync.Bundle
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) doRequest(ctx context.Context, method, path, tenantID string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}
	if h.userID != "" {
		req.Header.Set(userHeader, h.userID)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	h.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	return resp, nil
}

func (h *HTTPClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if resp.StatusCode >= 400 {
		return newAPIError(resp.StatusCode, body)
	}

	if result != nil {
		// числа записей пакета должны сохранить точность int64
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}
