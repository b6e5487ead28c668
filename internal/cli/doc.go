// Package cli реализует orderctl — служебную утилиту OrderFlow.
//
// # Обзор
//
// orderctl нужен оператору пайплайна: объявить топологию RabbitMQ,
// опубликовать тестовый заказ, применить схему хранилища, посмотреть
// заказ и вручную перевести его в финальный статус.
//
// # Ключевые компоненты
//
// ## Env
//
// Общее окружение команд: путь к конфигурации (--config), адрес
// служебного сервера (--ops-url) и режим вывода (--json). Конфигурация
// читается тем же config.Load, что и у order-ingestor.
//
// ## Client
//
// HTTP-клиент служебного сервера order-ingestor (/readyz).
//
//	client := cli.NewClient("http://localhost:8080")
//	ready, err := client.Ready()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи — в stderr.
// Это позволяет использовать pipe: orderctl order get EXT-1 --json | jq .
//
// ## Commands
//
//   - topology: объявление exchanges, queues и bindings
//   - publish: публикация входящего заказа (--item NAME:PRICE:QTY или --file)
//   - migrate: применение схемы хранилища
//   - order: get, mark
//   - status: готовность order-ingestor
//
// Каждая команда создаётся фабричной функцией (NewOrderCmd и т.д.),
// принимающей *Env. Поля Env заполняются после парсинга PersistentFlags.
package cli
