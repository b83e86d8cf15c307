package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath = ".env"

	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	// Офлайн-установка: стартует в OFFLINE и работает с локальной БД.
	DeploymentDesktop = "desktop"
	// Серверная установка: стартует в ONLINE и периодически проверяет сеть.
	DeploymentServer = "server"
)

type Config struct {
	Env        string
	Deployment string
	DeviceID   string
	DB         db
	Server     server
	Sync       sync
	Logger     logger
}

type db struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
	LocalPath   string `env:"LOCAL_DB_PATH"`
}

type server struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	OperatorTokenHash string `env:"OPERATOR_TOKEN_HASH"`
	DeviceTokenHash   string `env:"DEVICE_TOKEN_HASH"`
}

type sync struct {
	RemoteURL      string        `env:"REMOTE_URL"`
	RemoteToken    string        `env:"REMOTE_TOKEN"`
	ProbeInterval  time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`
	LockTimeout    time.Duration `env:"SYNC_LOCK_TIMEOUT" envDefault:"5m"`
	TxDrainTimeout time.Duration `env:"TX_DRAIN_TIMEOUT" envDefault:"5s"`
}

type logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("deployment_mode", DeploymentServer)
	v.SetDefault("device_id", "server")
	v.SetDefault("run_address", ":8080")
	v.SetDefault("migrations_path", "migrations/postgres")
	v.SetDefault("local_db_path", "paysync.db")
	v.SetDefault("probe_interval", 30*time.Second)
	v.SetDefault("sync_lock_timeout", 5*time.Minute)
	v.SetDefault("tx_drain_timeout", 5*time.Second)
	v.SetDefault("log_level", "info")
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

// MustLoad то же, что Load, но паникует при невалидной конфигурации.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:        v.GetString("app_env"),
		Deployment: v.GetString("deployment_mode"),
		DeviceID:   v.GetString("device_id"),
		DB: db{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
			LocalPath:   v.GetString("local_db_path"),
		},
		Server: server{
			RunAddress:        v.GetString("run_address"),
			OperatorTokenHash: v.GetString("operator_token_hash"),
			DeviceTokenHash:   v.GetString("device_token_hash"),
		},
		Sync: sync{
			RemoteURL:      v.GetString("remote_url"),
			RemoteToken:    v.GetString("remote_token"),
			ProbeInterval:  v.GetDuration("probe_interval"),
			LockTimeout:    v.GetDuration("sync_lock_timeout"),
			TxDrainTimeout: v.GetDuration("tx_drain_timeout"),
		},
		Logger: logger{LogLevel: v.GetString("log_level")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Deployment {
	case DeploymentDesktop, DeploymentServer:
	default:
		return fmt.Errorf("unknown deployment_mode %q", c.Deployment)
	}
	if c.DB.LocalPath == "" {
		return fmt.Errorf("local_db_path must not be empty")
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}
	if c.Sync.LockTimeout <= 0 {
		return fmt.Errorf("sync_lock_timeout must be positive")
	}
	return nil
}

// StartsOnline сообщает, в каком состоянии сети стартует процесс.
func (c *Config) StartsOnline() bool {
	return c.Deployment == DeploymentServer
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}
