package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/storage/sqlite"
)

func setupLedger(t *testing.T) (*Ledger, *sqlite.Storage) {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewLedger(s, "device-1", slog.Default()), s
}

func appendN(t *testing.T, l *Ledger, tenant string, n int) []Entry {
	t.Helper()
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e := Entry{
			TenantID:    tenant,
			UserID:      "operator",
			ActionType:  ActionSyncPush,
			Module:      ModuleSync,
			Description: fmt.Sprintf("push #%d", i),
			NewValue:    Snapshot(map[string]int{"records": i}),
			IPAddress:   "10.0.0.1",
		}
		require.NoError(t, l.Append(context.Background(), &e))
		out = append(out, e)
	}
	return out
}

func TestComputeHash_Deterministic(t *testing.T) {
	e := &Entry{TenantID: "T1", UserID: "u", ActionType: "A", Module: "m", Description: "d", IPAddress: "ip"}

	h1 := ComputeHash(GenesisHash, e)
	h2 := ComputeHash(GenesisHash, e)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, ComputeHash(h1, e))

	e.Description = "d2"
	assert.NotEqual(t, h1, ComputeHash(GenesisHash, e))
}

func TestComputeHash_CoversDeviceAndTime(t *testing.T) {
	ts := time.Date(2026, 5, 4, 12, 0, 0, 123456789, time.UTC)
	e := &Entry{TenantID: "T1", ActionType: "A", DeviceID: "dev-1", CreatedAt: ts}
	base := ComputeHash(GenesisHash, e)

	// наносекунды за пределами микросекунд не влияют, зона тоже
	e.CreatedAt = ts.Truncate(time.Microsecond).In(time.FixedZone("MSK", 3*3600))
	assert.Equal(t, base, ComputeHash(GenesisHash, e))

	e.CreatedAt = ts.Add(time.Second)
	assert.NotEqual(t, base, ComputeHash(GenesisHash, e))

	e.CreatedAt = ts
	e.DeviceID = "dev-2"
	assert.NotEqual(t, base, ComputeHash(GenesisHash, e))
}

func TestLedger_CreatedAtSurvivesRoundTrip(t *testing.T) {
	l, _ := setupLedger(t)
	l.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 987654321, time.UTC) }
	appendN(t, l, "T1", 2)

	entries, err := l.Entries(context.Background(), "T1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 987654000, entries[0].CreatedAt.Nanosecond())

	report, err := l.Verify(context.Background(), "T1")
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestLedger_AppendChainsPerTenant(t *testing.T) {
	l, _ := setupLedger(t)

	t1 := appendN(t, l, "T1", 3)
	t2 := appendN(t, l, "T2", 2)

	assert.Equal(t, GenesisHash, t1[0].PrevHash)
	assert.Equal(t, t1[0].Hash, t1[1].PrevHash)
	assert.Equal(t, t1[1].Hash, t1[2].PrevHash)
	assert.Equal(t, GenesisHash, t2[0].PrevHash)
	assert.Equal(t, t2[0].Hash, t2[1].PrevHash)

	assert.NotZero(t, t1[0].ID)
	assert.Greater(t, t1[2].ID, t1[1].ID)
	assert.Equal(t, "device-1", t1[0].DeviceID)
}

func TestLedger_AppendValidation(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	assert.ErrorIs(t, l.Append(ctx, &Entry{ActionType: ActionSyncPush}), ErrTenantRequired)
	assert.ErrorIs(t, l.Append(ctx, &Entry{TenantID: "T1"}), ErrActionRequired)
}

func TestLedger_VerifyCleanChain(t *testing.T) {
	l, _ := setupLedger(t)
	appendN(t, l, "T1", 4)
	appendN(t, l, "T2", 3)

	report, err := l.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 7, report.Count)
	assert.Empty(t, report.Issues)

	report, err = l.Verify(context.Background(), "T2")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Count)
}

func TestLedger_VerifyEmpty(t *testing.T) {
	l, _ := setupLedger(t)

	report, err := l.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 0, report.Count)
}

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		update string
		args   func(e Entry) []any
		reason string
	}{
		{
			name:   "description rewritten",
			update: "UPDATE audit_logs SET description = ? WHERE id = ?",
			args:   func(e Entry) []any { return []any{"nothing happened", e.ID} },
			reason: ReasonHashMismatch,
		},
		{
			name:   "new value rewritten",
			update: "UPDATE audit_logs SET new_value = ? WHERE id = ?",
			args:   func(e Entry) []any { return []any{`{"records":999}`, e.ID} },
			reason: ReasonHashMismatch,
		},
		{
			name:   "device rewritten",
			update: "UPDATE audit_logs SET device_id = ? WHERE id = ?",
			args:   func(e Entry) []any { return []any{"forged-device", e.ID} },
			reason: ReasonHashMismatch,
		},
		{
			name:   "timestamp rewritten",
			update: "UPDATE audit_logs SET created_at = ? WHERE id = ?",
			args:   func(e Entry) []any { return []any{"1999-01-01 00:00:00", e.ID} },
			reason: ReasonHashMismatch,
		},
		{
			name:   "prev hash relinked",
			update: "UPDATE audit_logs SET prev_hash = ? WHERE id = ?",
			args:   func(e Entry) []any { return []any{GenesisHash, e.ID} },
			reason: ReasonPrevHashMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, s := setupLedger(t)
			entries := appendN(t, l, "T1", 5)
			target := entries[2]

			_, err := s.Exec(context.Background(), tt.update, tt.args(target)...)
			require.NoError(t, err)

			report, err := l.Verify(context.Background(), "")
			require.NoError(t, err)
			assert.False(t, report.Valid)
			assert.Equal(t, 5, report.Count)
			require.NotEmpty(t, report.Issues)
			for _, issue := range report.Issues {
				assert.Equal(t, target.ID, issue.EntryID)
			}
			assert.Equal(t, tt.reason, report.Issues[0].Reason)
		})
	}
}

func TestLedger_VerifyDetectsDeletedEntry(t *testing.T) {
	l, s := setupLedger(t)
	entries := appendN(t, l, "T1", 4)

	_, err := s.Exec(context.Background(), "DELETE FROM audit_logs WHERE id = ?", entries[1].ID)
	require.NoError(t, err)

	report, err := l.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, entries[2].ID, report.Issues[0].EntryID)
	assert.Equal(t, ReasonPrevHashMismatch, report.Issues[0].Reason)
}

type brokenQuerier struct{}

func (brokenQuerier) Query(context.Context, string, ...any) ([]storage.Row, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenQuerier) Exec(context.Context, string, ...any) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestLedger_LogIsBestEffort(t *testing.T) {
	l := NewLedger(brokenQuerier{}, "device-1", slog.Default())

	assert.NotPanics(t, func() {
		l.Log(context.Background(), Entry{TenantID: "T1", ActionType: ActionSyncPull, Module: ModuleSync})
	})
}

func TestLedger_Entries(t *testing.T) {
	l, _ := setupLedger(t)
	appendN(t, l, "T1", 3)

	entries, err := l.Entries(context.Background(), "T1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "push #2", entries[0].Description)
	assert.JSONEq(t, `{"records":2}`, string(entries[0].NewValue))
}
