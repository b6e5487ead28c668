// Package ops — служебный HTTP сервер сервиса.
//
// Маршруты:
//   - GET /healthz  — liveness
//   - GET /readyz   — проверка зависимостей (БД, RabbitMQ, Redis)
//   - GET /metrics  — Prometheus
package ops
