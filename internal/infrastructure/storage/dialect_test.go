package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name      string
		dialect   Dialect
		query     string
		args      []any
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "postgres numbered placeholders",
			dialect:   DialectPostgres,
			query:     "SELECT * FROM employees WHERE uuid = ? AND tenant_id = ?",
			args:      []any{"u1", "t1"},
			wantQuery: "SELECT * FROM employees WHERE uuid = $1 AND tenant_id = $2",
			wantArgs:  []any{"u1", "t1"},
		},
		{
			name:      "sqlite keeps question marks",
			dialect:   DialectSQLite,
			query:     "SELECT * FROM employees WHERE uuid = ?",
			args:      []any{"u1"},
			wantQuery: "SELECT * FROM employees WHERE uuid = ?",
			wantArgs:  []any{"u1"},
		},
		{
			name:      "slice expansion postgres",
			dialect:   DialectPostgres,
			query:     "UPDATE employees SET is_synced = 1 WHERE tenant_id = ? AND uuid IN (?)",
			args:      []any{"t1", []string{"a", "b", "c"}},
			wantQuery: "UPDATE employees SET is_synced = 1 WHERE tenant_id = $1 AND uuid IN ($2, $3, $4)",
			wantArgs:  []any{"t1", "a", "b", "c"},
		},
		{
			name:      "empty slice becomes NULL",
			dialect:   DialectSQLite,
			query:     "DELETE FROM t WHERE id IN (?)",
			args:      []any{[]int64{}},
			wantQuery: "DELETE FROM t WHERE id IN (NULL)",
			wantArgs:  []any{},
		},
		{
			name:      "bytes are not expanded",
			dialect:   DialectPostgres,
			query:     "INSERT INTO blobs (data) VALUES (?)",
			args:      []any{[]byte("xyz")},
			wantQuery: "INSERT INTO blobs (data) VALUES ($1)",
			wantArgs:  []any{[]byte("xyz")},
		},
		{
			name:      "sqlite rewrites NOW and strips FOR UPDATE",
			dialect:   DialectSQLite,
			query:     "SELECT status, now() AS ts FROM sync_batches WHERE batch_id = ? FOR UPDATE",
			args:      []any{"b1"},
			wantQuery: "SELECT status, CURRENT_TIMESTAMP AS ts FROM sync_batches WHERE batch_id = ?",
			wantArgs:  []any{"b1"},
		},
		{
			name:      "question mark inside literal is untouched",
			dialect:   DialectPostgres,
			query:     "SELECT '?' AS q, col FROM t WHERE id = ?",
			args:      []any{int64(7)},
			wantQuery: "SELECT '?' AS q, col FROM t WHERE id = $1",
			wantArgs:  []any{int64(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := Rebind(tt.dialect, tt.query, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRebind_ArgumentMismatch(t *testing.T) {
	_, _, err := Rebind(DialectPostgres, "SELECT ? , ?", []any{1})
	assert.Error(t, err)

	_, _, err = Rebind(DialectSQLite, "SELECT ?", []any{1, 2})
	assert.Error(t, err)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: fmt.Errorf("wrap: %w", ErrConnectivity), want: true},
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: true},
		{name: "reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "db.internal"}, want: true},
		{name: "net timeout", err: timeoutErr{}, want: true},
		{name: "eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "bad conn", err: driver.ErrBadConn, want: true},
		{name: "pg auth failure", err: &pgconn.PgError{Code: "28P01"}, want: true},
		{name: "pg connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "pg unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "caller canceled", err: context.Canceled, want: false},
		{name: "plain error", err: errors.New("syntax error"), want: false},
		{name: "sync locked", err: ErrSyncLocked, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}

func TestRow_Accessors(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := Row{
		"name":      []byte("Ada"),
		"version":   int64(3),
		"json_num":  float64(12),
		"synced":    int64(1),
		"flag":      true,
		"ts":        ts,
		"ts_string": "2026-01-02 03:04:05+00:00",
		"null":      nil,
	}

	assert.Equal(t, "Ada", row.String("name"))
	assert.Equal(t, int64(3), row.Int64("version"))
	assert.Equal(t, int64(12), row.Int64("json_num"))
	assert.True(t, row.Bool("synced"))
	assert.True(t, row.Bool("flag"))
	assert.True(t, ts.Equal(row.Time("ts")))
	assert.True(t, ts.Equal(row.Time("ts_string")))
	assert.Equal(t, "", row.String("null"))
	assert.True(t, row.Time("null").IsZero())
}
