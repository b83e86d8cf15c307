package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"paysync/internal/infrastructure/storage"
)

// Ответ сервера со статусом >= 400.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ошибка сервера: статус %d", e.Status)
	}
	return fmt.Sprintf("ошибка сервера (%d): %s", e.Status, e.Detail)
}

// Unwrap позволяет проверять 423 через storage.ErrSyncLocked, а 502/503/504
// через storage.ErrConnectivity.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusLocked:
		return storage.ErrSyncLocked
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return storage.ErrConnectivity
	}
	return nil
}

// IsRetryable сообщает, стоит ли повторить запрос позже.
func (e *APIError) IsRetryable() bool {
	return e.Unwrap() != nil
}

func newAPIError(status int, body []byte) *APIError {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &problem); err == nil {
		switch {
		case problem.Detail != "":
			apiErr.Detail = problem.Detail
		case problem.Error != "":
			apiErr.Detail = problem.Error
		default:
			apiErr.Detail = problem.Title
		}
	}
	return apiErr
}
