package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderflow"

// Metrics — Prometheus метрики пайплайна.
type Metrics struct {
	// MessagesTotal — входящие сообщения по исходу обработки (outcome).
	MessagesTotal *prometheus.CounterVec

	// ProcessTotal — результат процессора по пути (created, duplicate, race_recovered).
	ProcessTotal *prometheus.CounterVec

	// PublishTotal — отправки downstream по результату (sent, failed, degraded).
	PublishTotal *prometheus.CounterVec

	// BreakerState — состояние circuit breaker: 0 closed, 1 half-open, 2 open.
	BreakerState *prometheus.GaugeVec

	// QueueDepth — количество сообщений в очереди (заполняет monitor).
	QueueDepth *prometheus.GaugeVec

	// ProcessingDuration — время обработки одного сообщения.
	ProcessingDuration prometheus.Histogram
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound order messages by processing outcome.",
		}, []string{"outcome"}),

		ProcessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_total",
			Help:      "Idempotent processor results by path.",
		}, []string{"path"}),

		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Downstream publish attempts by result.",
		}, []string{"result"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages",
			Help:      "Messages ready in a RabbitMQ queue.",
		}, []string{"queue"}),

		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time to consume, process and publish one order message.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NopMetrics возвращает метрики, зарегистрированные в отдельном реестре.
// Для тестов и компонентов, собранных без метрик.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
