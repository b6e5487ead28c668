// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect, канал публикации в confirm mode
//   - topology.go   — объявление exchanges, queues, bindings из конфигурации
//   - publisher.go  — публикация JSON с подтверждением брокера
//   - consumer.go   — потребление с ручным ack и решением Decision
//
// Топология по умолчанию:
//
//	ex.orders.main (topic)
//	├── q.orders.import     [order.imported]   quorum, x-delivery-limit, DLX
//	└── q.orders.calculated [order.calculated]
//	ex.orders.dlx (direct)
//	└── q.orders.import.dlq [order.error]
package mq
