package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/shaiso/OrderFlow/internal/config"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

// Env — общее окружение команд.
//
// Поля заполняются PersistentFlags корневой команды, поэтому
// Output, Client и Config вызываются только внутри RunE.
type Env struct {
	// ConfigPath — YAML-файл конфигурации (пусто: ORDERFLOW_CONFIG).
	ConfigPath string

	// OpsURL — адрес служебного HTTP сервера order-ingestor.
	OpsURL string

	// JSON — вывод данных в JSON.
	JSON bool

	Stdout io.Writer
	Stderr io.Writer
}

// NewEnv создаёт Env, пишущий в stdout/stderr процесса.
func NewEnv() *Env {
	return &Env{
		OpsURL: "http://localhost:8080",
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Output возвращает форматтер вывода.
func (e *Env) Output() *Output {
	return NewOutputTo(e.JSON, e.Stdout, e.Stderr)
}

// Client возвращает клиент служебного сервера.
func (e *Env) Client() *Client {
	return NewClient(e.OpsURL)
}

// Config загружает конфигурацию.
func (e *Env) Config() (config.Config, error) {
	return config.Load(e.ConfigPath)
}

// Logger возвращает логгер для stderr. Stdout занят данными.
func (e *Env) Logger(cfg config.Config) *slog.Logger {
	logCfg := cfg.Log
	if logCfg.Level == "" {
		logCfg.Level = "WARN"
	}
	if logCfg.Format == "" {
		logCfg.Format = "text"
	}
	return telemetry.NewLogger(logCfg, e.Stderr)
}
