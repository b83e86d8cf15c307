package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paysync/cmd/client/cmd/output"
	"paysync/cmd/client/cmd/types"
)

var allTenants bool

var AuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Журнал аудита",
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Проверить хэш-цепочку журнала аудита (только оператор)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, p, err := types.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		report, err := c.VerifyAudit(ctx, allTenants)
		if err != nil {
			return fmt.Errorf("ошибка проверки: %w", err)
		}

		if err := p.Print(report, func(t *output.Table) {
			verdict := "VALID"
			if !report.Valid {
				verdict = "INVALID"
			}
			t.Row("Результат:", output.Status(verdict))
			t.Row("Записей:", report.Count)
			if len(report.Issues) == 0 {
				return
			}
			t.Row("")
			t.Row("ENTRY", "TENANT", "REASON")
			for _, is := range report.Issues {
				t.Row(is.EntryID, is.TenantID, output.Status(is.Reason))
			}
		}); err != nil {
			return err
		}

		if !report.Valid {
			return fmt.Errorf("целостность журнала нарушена: %d записей", len(report.Issues))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&allTenants, "all", false, "проверить цепочки всех тенантов")

	AuditCmd.AddCommand(verifyCmd)
}
