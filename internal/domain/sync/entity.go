package sync

import (
	"encoding/json"
	"sort"
	"strings"

	"paysync/internal/infrastructure/storage"
)

// Зарегистрированная синхронизируемая таблица. В пакетах участвуют
// только колонки метаданных и колонки из Columns.
type Entity struct {
	Table   string
	Columns []string
}

// metaColumns есть у каждой синхронизируемой таблицы. is_synced не передается:
// его выставляет принимающая сторона.
var metaColumns = []string{"uuid", "tenant_id", "device_id", "sync_version", "created_at", "updated_at", "deleted_at"}

// immutableColumns не меняются на пути обновления upsert.
var immutableColumns = map[string]bool{"uuid": true, "tenant_id": true, "created_at": true}

var registry = []Entity{
	{
		Table:   "employees",
		Columns: []string{"employee_code", "full_name", "department", "designation", "base_salary_cents", "joined_on"},
	},
	{
		Table:   "attendance_entries",
		Columns: []string{"employee_uuid", "work_date", "status", "check_in", "check_out", "minutes_worked"},
	},
	{
		Table:   "pay_records",
		Columns: []string{"employee_uuid", "period", "gross_cents", "deductions_cents", "net_cents", "paid_at"},
	},
}

// Entities возвращает копию реестра в фиксированном порядке.
func Entities() []Entity {
	out := make([]Entity, len(registry))
	copy(out, registry)
	return out
}

func lookupEntity(table string) (Entity, bool) {
	for _, e := range registry {
		if e.Table == table {
			return e, true
		}
	}
	return Entity{}, false
}

// Колонки, попадающие в исходящий пакет.
func (e Entity) selectColumns() []string {
	return append(append([]string{}, metaColumns...), e.Columns...)
}

func (e Entity) allowed(col string) bool {
	for _, c := range metaColumns {
		if c == col {
			return true
		}
	}
	for _, c := range e.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// upsertQuery строит вставку с конфликтом по uuid. Строка чужого тенанта
// не обновляется: такой upsert затрагивает 0 строк.
func (e Entity) upsertQuery(cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if immutableColumns[c] {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(e.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	b.WriteString(") ON CONFLICT (uuid) DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE ")
	b.WriteString(e.Table)
	b.WriteString(".tenant_id = EXCLUDED.tenant_id")
	return b.String()
}

// toRecord отбрасывает колонки вне белого списка.
func (e Entity) toRecord(row storage.Row) Record {
	rec := make(Record, len(row))
	for col, v := range row {
		if e.allowed(col) {
			rec[col] = v
		}
	}
	return rec
}

// Сначала сущности реестра, затем неизвестные ключи пакета.
func orderedTables(data map[string][]Record) []string {
	out := make([]string, 0, len(data))
	for _, e := range registry {
		if _, ok := data[e.Table]; ok {
			out = append(out, e.Table)
		}
	}
	var unknown []string
	for table := range data {
		if _, ok := lookupEntity(table); !ok {
			unknown = append(unknown, table)
		}
	}
	sort.Strings(unknown)
	return append(out, unknown...)
}

// normalizeValue приводит значения, пришедшие из JSON, к типам драйверов.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case map[string]any, []any:
		b, err := json.Marshal(n)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
