package ops

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger — зависимость, проверяемая в /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config — конфигурация Handler.
type Config struct {
	// Checks — проверки готовности по имени (database, rabbitmq, redis).
	Checks map[string]Pinger

	// CheckTimeout — таймаут одной проверки (default: 2s).
	CheckTimeout time.Duration

	Logger *slog.Logger
}

// Handler — HTTP обработчики служебного сервера.
type Handler struct {
	checks       map[string]Pinger
	checkTimeout time.Duration
	startTime    time.Time
	logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		checks:       cfg.Checks,
		checkTimeout: timeout,
		startTime:    time.Now(),
		logger:       logger,
	}
}

// Healthz отвечает, пока процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %s", time.Since(h.startTime).Round(time.Second))
}

// ReadyResponse — ответ /readyz.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Readyz проверяет все зависимости. 503, если хотя бы одна недоступна.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
		err := h.checks[name].Ping(ctx)
		cancel()

		if err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	JSON(w, status, resp)
}
