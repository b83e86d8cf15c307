package logger

import (
	"os"

	"golang.org/x/exp/slog"

	"paysync/internal/config"
	"paysync/internal/utils/logger/handlers/slogpretty"
)

// New возвращает логгер под окружение: local: цветной вывод, dev: JSON с debug, prod: JSON с info.
// Непустой level (LOG_LEVEL) перекрывает уровень окружения.
func New(env, level string) *slog.Logger {
	lvl := envLevel(env)
	if level != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			lvl = parsed
		}
	}

	if env == config.EnvLocal {
		return setupPrettySlog(lvl)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envLevel(env string) slog.Level {
	switch env {
	case config.EnvLocal, config.EnvDev:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: level},
	}

	return slog.New(opts.NewPrettyHandler(os.Stdout))
}

// Err упаковывает ошибку в атрибут с ключом error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
