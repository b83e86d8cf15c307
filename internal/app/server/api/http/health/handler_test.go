package health

import (
	"context"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"

	"paysync/internal/domain/mode"
)

type stubState struct {
	mode    mode.Mode
	backend string
}

func (s stubState) Mode() mode.Mode     { return s.mode }
func (s stubState) BackendName() string { return s.backend }

func TestHandler_healthCheck(t *testing.T) {
	tests := []struct {
		name            string
		state           StateReader
		expectedMode    string
		expectedBackend string
	}{
		{
			name:  "without state reader",
			state: nil,
		},
		{
			name:            "online on postgres",
			state:           stubState{mode: mode.Online, backend: "postgres"},
			expectedMode:    "ONLINE",
			expectedBackend: "postgres",
		},
		{
			name:            "syncing on sqlite",
			state:           stubState{mode: mode.Syncing, backend: "sqlite"},
			expectedMode:    "SYNCING",
			expectedBackend: "sqlite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(tt.state, slog.Default(), huma.Middlewares{})

			output, err := handler.healthCheck(context.Background(), &Input{})

			assert.NoError(t, err)
			assert.NotNil(t, output)
			assert.Equal(t, "OK", output.Body.Status)
			assert.Equal(t, tt.expectedMode, output.Body.Mode)
			assert.Equal(t, tt.expectedBackend, output.Body.Backend)
		})
	}
}

func TestNewHandler(t *testing.T) {
	handler := NewHandler(nil, slog.Default(), huma.Middlewares{})

	assert.NotNil(t, handler)
	assert.NotNil(t, handler.log)
	assert.NotNil(t, handler.middleware)
}
