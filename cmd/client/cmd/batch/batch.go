package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paysync/cmd/client/cmd/output"
	"paysync/cmd/client/cmd/types"
)

var BatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Журнал пакетов синхронизации",
}

var trailCmd = &cobra.Command{
	Use:   "trail <batch-id>",
	Short: "Исход каждой записи пакета",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, p, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		entries, err := c.Trail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения трейла: %w", err)
		}

		return p.Print(entries, func(t *output.Table) {
			t.Row("TABLE", "RECORD", "ACTION", "STATUS", "MESSAGE")
			for _, e := range entries {
				t.Row(e.Table, e.RecordUUID, output.Status(string(e.Action)), output.Status(string(e.Status)), e.Message)
			}
		})
	},
}

func init() {
	BatchCmd.AddCommand(trailCmd)
}
