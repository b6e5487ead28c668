// Package config загружает конфигурацию сервиса и CLI.
//
// Порядок применения: значения по умолчанию, затем YAML-файл,
// затем переменные окружения. Путь к файлу можно задать флагом
// или через ORDERFLOW_CONFIG; без файла используются только
// умолчания и окружение.
//
// Переменные окружения:
//   - DB_URL         — DSN PostgreSQL
//   - STORE_DRIVER   — postgres | sqlite | memory
//   - SQLITE_PATH    — файл БД для драйвера sqlite
//   - RABBITMQ_URL   — AMQP URL
//   - REDIS_ADDR     — адрес Redis; пусто — кэш выключен
//   - HTTP_PORT      — порт служебного HTTP сервера
//   - LOG_LEVEL, LOG_FORMAT — см. telemetry.SetupLogger
package config
