// Package telemetry обеспечивает наблюдаемость сервиса.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики пайплайна
//
// Метрики экспортируются на /metrics (см. пакет ops).
package telemetry
