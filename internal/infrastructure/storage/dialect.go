package storage

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Dialect определяет, как нормализованный запрос переводится для конкретного бэкенда.
//
// Нормализованная форма:
//   - плейсхолдеры "?";
//   - аргумент-срез разворачивается в список: "IN (?)" + []string{"a","b"} -> "IN (?, ?)";
//   - NOW() для текущего времени;
//   - "FOR UPDATE" для блокировки строк;
//   - upsert через "ON CONFLICT (col) DO UPDATE SET c = EXCLUDED.c".
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

var (
	reNow       = regexp.MustCompile(`(?i)\bNOW\(\)`)
	reForUpdate = regexp.MustCompile(`(?i)\s+FOR\s+UPDATE\b`)
)

// Rebind переводит запрос в нормализованном диалекте в диалект бэкенда
// и разворачивает аргументы-срезы.
func Rebind(d Dialect, query string, args []any) (string, []any, error) {
	var (
		b       strings.Builder
		out     = make([]any, 0, len(args))
		argIdx  int
		inQuote rune
	)
	b.Grow(len(query) + 16)

	placeholder := func() {
		out = append(out, nil)
		if d == DialectPostgres {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(out)))
			return
		}
		b.WriteByte('?')
	}

	for _, ch := range query {
		if inQuote != 0 {
			b.WriteRune(ch)
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}

		switch ch {
		case '\'', '"':
			inQuote = ch
			b.WriteRune(ch)
		case '?':
			if argIdx >= len(args) {
				return "", nil, fmt.Errorf("rebind: not enough arguments for placeholders (have %d)", len(args))
			}
			arg := args[argIdx]
			argIdx++

			items, ok := expandable(arg)
			if !ok {
				placeholder()
				out[len(out)-1] = arg
				continue
			}
			if len(items) == 0 {
				// IN (NULL) ничего не совпадает, что и нужно для пустого списка
				b.WriteString("NULL")
				continue
			}
			for i, item := range items {
				if i > 0 {
					b.WriteString(", ")
				}
				placeholder()
				out[len(out)-1] = item
			}
		default:
			b.WriteRune(ch)
		}
	}

	if argIdx != len(args) {
		return "", nil, fmt.Errorf("rebind: %d arguments for %d placeholders", len(args), argIdx)
	}

	q := b.String()
	if d == DialectSQLite {
		q = reNow.ReplaceAllString(q, "CURRENT_TIMESTAMP")
		q = reForUpdate.ReplaceAllString(q, "")
	}

	return q, out, nil
}

// expandable возвращает элементы аргумента-среза. []byte срезом не считается.
func expandable(arg any) ([]any, bool) {
	if arg == nil {
		return nil, false
	}
	if _, isBytes := arg.([]byte); isBytes {
		return nil, false
	}
	v := reflect.ValueOf(arg)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, true
}
