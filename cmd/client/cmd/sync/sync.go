package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paysync/cmd/client/cmd/output"
	"paysync/cmd/client/cmd/types"
	"paysync/internal/app/client"
)

const requestTimeout = 2 * time.Minute

var since int64

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Синхронизация локальной базы с удаленным сервером.

Команды запускают push/pull на сервере-узле, показывают статус
и позволяют оператору снять зависшую блокировку.`,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Отправить локальные изменения",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *client.HTTPClient, p *output.Printer) error {
			res, err := c.Push(ctx, since)
			if err != nil {
				return fmt.Errorf("ошибка push: %w", err)
			}
			return p.Print(res, func(t *output.Table) {
				t.Row("BATCH", "RECORDS", "STATUS")
				t.Row(res.BatchID, res.RecordsSynced, output.Status(okStatus(res.Success)))
			})
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Забрать изменения с сервера",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *client.HTTPClient, p *output.Printer) error {
			res, err := c.Pull(ctx)
			if err != nil {
				return fmt.Errorf("ошибка pull: %w", err)
			}
			return p.Print(res, func(t *output.Table) {
				t.Row("BATCH", "APPLIED", "CONFLICTS", "ERRORS", "SKIPPED")
				t.Row(res.BatchID, res.Applied, res.Conflicts, res.Errors, res.Skipped)
			})
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Статус синхронизации тенанта",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *client.HTTPClient, p *output.Printer) error {
			res, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("ошибка получения статуса: %w", err)
			}
			return p.Print(res, func(t *output.Table) {
				last := "никогда"
				if res.LastSyncTime != nil {
					last = res.LastSyncTime.Local().Format(time.DateTime)
				}
				t.Row("Тенант:", res.TenantID)
				t.Row("Режим:", output.Status(res.Mode.String()))
				t.Row("Бэкенд:", res.Backend)
				t.Row("Последняя синхронизация:", last)
				t.Row("")
				t.Row("BATCH", "DIRECTION", "STATUS", "RECORDS", "STARTED")
				for _, b := range res.RecentBatches {
					t.Row(b.BatchID, b.Direction, output.Status(string(b.Status)), b.RecordCount,
						b.StartedAt.Local().Format(time.DateTime))
				}
			})
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Снять блокировку SYNCING (только оператор)",
	Long: `Принудительно снимает блокировку синхронизации.

Используйте только после того, как убедились, что синхронизация
действительно зависла: незавершенный пакет останется в журнале.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *client.HTTPClient, p *output.Printer) error {
			res, err := c.Reset(ctx)
			if err != nil {
				return fmt.Errorf("ошибка сброса: %w", err)
			}
			return p.Print(res, func(t *output.Table) {
				t.Row("Сброшено:", res.Success)
				t.Row("Режим:", output.Status(res.Mode.String()))
			})
		})
	},
}

func run(cmd *cobra.Command, fn func(ctx context.Context, c *client.HTTPClient, p *output.Printer) error) error {
	c, p, err := types.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return fn(ctx, c, p)
}

func okStatus(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAILED"
}

func init() {
	pushCmd.Flags().Int64Var(&since, "since", 0, "unix millis предыдущего push")

	SyncCmd.AddCommand(pushCmd, pullCmd, statusCmd, resetCmd)
}
