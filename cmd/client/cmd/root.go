package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"
	"golang.org/x/term"

	"paysync/cmd/client/cmd/audit"
	"paysync/cmd/client/cmd/batch"
	"paysync/cmd/client/cmd/output"
	"paysync/cmd/client/cmd/sync"
	"paysync/cmd/client/cmd/types"
	"paysync/internal/app/client"
	"paysync/internal/app/client/config"
	"paysync/internal/utils/logger"
)

var (
	cfgFile      string
	serverURL    string
	tenantID     string
	token        string
	outputFormat string
	askToken     bool
)

var rootCmd = &cobra.Command{
	Use:   "paysync",
	Short: "Paysync: консоль оператора синхронизации",
	Long: `Paysync — утилита оператора для управления офлайн-синхронизацией.

Позволяет запустить push/pull, посмотреть статус и трейл пакетов,
снять зависшую блокировку и проверить целостность журнала аудита.`,
	PersistentPreRunE: setupClient,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupClient(cmd *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("ошибка чтения конфигурации: %w", err)
		}
		// значения из файла видны config.Load как переменные окружения
		for _, key := range viper.AllKeys() {
			env := strings.ToUpper(key)
			if os.Getenv(env) == "" {
				_ = os.Setenv(env, viper.GetString(key))
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if tenantID != "" {
		cfg.TenantID = tenantID
	}
	if token != "" {
		cfg.OperatorToken = token
	}
	if cfg.OperatorToken == "" && askToken {
		t, err := promptToken()
		if err != nil {
			return err
		}
		cfg.OperatorToken = t
	}
	if cfg.TenantID == "" {
		return fmt.Errorf("не задан тенант: используйте --tenant или TENANT_ID")
	}

	printer, err := output.New(outputFormat, os.Stdout)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	if !cfg.IsProd() {
		log = log.With(slog.String("tenant_id", cfg.TenantID))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, types.ClientKey, client.NewHTTPClient(cfg, log))
	ctx = context.WithValue(ctx, types.PrinterKey, printer)
	cmd.SetContext(ctx)

	return nil
}

func promptToken() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("токен оператора не задан, а stdin не терминал")
	}
	fmt.Fprint(os.Stderr, "Токен оператора: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл (yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера host:port")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "идентификатор тенанта")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "токен оператора (или OPERATOR_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&askToken, "ask-token", false, "запросить токен оператора в терминале")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "формат вывода: table, json, yaml")

	rootCmd.AddCommand(sync.SyncCmd)
	rootCmd.AddCommand(batch.BatchCmd)
	rootCmd.AddCommand(audit.AuditCmd)
}
