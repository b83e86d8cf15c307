package types

import (
	"context"
	"fmt"

	"paysync/cmd/client/cmd/output"
	"paysync/internal/app/client"
)

type contextKey string

const (
	ClientKey  contextKey = "client"
	PrinterKey contextKey = "printer"
)

// FromContext достает клиент и принтер, положенные корневой командой.
func FromContext(ctx context.Context) (*client.HTTPClient, *output.Printer, error) {
	c, ok := ctx.Value(ClientKey).(*client.HTTPClient)
	if !ok || c == nil {
		return nil, nil, fmt.Errorf("клиент не инициализирован")
	}
	p, ok := ctx.Value(PrinterKey).(*output.Printer)
	if !ok || p == nil {
		return nil, nil, fmt.Errorf("принтер не инициализирован")
	}
	return c, p, nil
}
