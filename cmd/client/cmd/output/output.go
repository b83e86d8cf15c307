package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Printer печатает результат команды в выбранном формате.
type Printer struct {
	format string
	w      io.Writer
}

func New(format string, w io.Writer) (*Printer, error) {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("неизвестный формат вывода %q (table, json, yaml)", format)
	}
	return &Printer{format: format, w: w}, nil
}

// Print выводит v как JSON/YAML, а в табличном режиме вызывает table.
func (p *Printer) Print(v any, table func(t *Table)) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := &Table{tw: tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)}
		table(t)
		return t.tw.Flush()
	}
}

// Выровненные колонки для табличного вывода.
type Table struct {
	tw *tabwriter.Writer
}

func (t *Table) Row(cols ...any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(t.tw, "\t")
		}
		fmt.Fprint(t.tw, c)
	}
	fmt.Fprintln(t.tw)
}

// Status окрашивает статусы пакетов и результатов проверки.
func Status(s string) string {
	switch s {
	case "SUCCESS", "APPLIED", "INSERT", "UPDATE", "ONLINE", "OK", "VALID":
		return color.GreenString(s)
	case "FAILED", "ERROR", "INVALID", "HASH_MISMATCH", "PREV_HASH_MISMATCH":
		return color.RedString(s)
	case "SYNCING", "PROCESSING", "PENDING", "CONFLICT_IGNORED", "SKIPPED", "OFFLINE":
		return color.YellowString(s)
	}
	return s
}
