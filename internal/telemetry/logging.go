package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig — настройки логирования.
// Пустые поля берутся из LOG_LEVEL и LOG_FORMAT.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ParseLevel переводит строку в уровень логирования.
// Возможные значения: DEBUG, INFO, WARN, ERROR (регистр не важен).
// По умолчанию: INFO
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger(cfg LogConfig) *slog.Logger {
	return setupLogger(cfg, os.Stdout)
}

func setupLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	logger := NewLogger(cfg, w)
	slog.SetDefault(logger)

	return logger
}

// NewLogger создаёт логгер, пишущий в w, не меняя глобальный.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	levelName := cfg.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	format := cfg.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}

	level := ParseLevel(levelName)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// NopLogger возвращает логгер, который ничего не пишет.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// FromContextOr извлекает логгер из контекста или возвращает fallback.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

// WithExternalID возвращает логгер с добавленным external_id.
func WithExternalID(logger *slog.Logger, externalID string) *slog.Logger {
	return logger.With("external_id", externalID)
}

// WithOrderID возвращает логгер с добавленным order_id.
func WithOrderID(logger *slog.Logger, orderID int64) *slog.Logger {
	return logger.With("order_id", orderID)
}

// WithMessageID возвращает логгер с добавленным message_id.
func WithMessageID(logger *slog.Logger, messageID string) *slog.Logger {
	return logger.With("message_id", messageID)
}
