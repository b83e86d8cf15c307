package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Время в хэше: UTC с точностью до микросекунд, столько хранит PostgreSQL.
const hashTimeLayout = "2006-01-02T15:04:05.000000Z"

// SHA-256 над каноничной склейкой предыдущего хэша и полей записи.
func ComputeHash(prevHash string, e *Entry) string {
	canonical := strings.Join([]string{
		prevHash,
		e.TenantID,
		e.UserID,
		e.ActionType,
		e.Module,
		e.Description,
		string(e.OldValue),
		string(e.NewValue),
		e.IPAddress,
		e.DeviceID,
		e.CreatedAt.UTC().Truncate(time.Microsecond).Format(hashTimeLayout),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
