package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/OrderFlow/internal/monitor"
	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/outbound"
	"github.com/shaiso/OrderFlow/internal/repo"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

// EnvConfigPath — переменная с путём к YAML-файлу.
const EnvConfigPath = "ORDERFLOW_CONFIG"

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config — конфигурация OrderFlow.
type Config struct {
	Log      telemetry.LogConfig `yaml:"log"`
	Store    StoreConfig         `yaml:"store"`
	RabbitMQ RabbitMQConfig      `yaml:"rabbitmq"`
	Redis    RedisConfig         `yaml:"redis"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Outbound OutboundConfig      `yaml:"outbound"`
	Monitor  MonitorConfig       `yaml:"monitor"`
	HTTP     HTTPConfig          `yaml:"http"`
}

// StoreConfig — хранилище заказов.
type StoreConfig struct {
	Driver     string        `yaml:"driver"`
	DSN        string        `yaml:"dsn"`
	MaxConns   int32         `yaml:"max_conns"`
	SQLitePath string        `yaml:"sqlite_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RabbitMQConfig — брокер и топология.
type RabbitMQConfig struct {
	URL      string      `yaml:"url"`
	Topology mq.Topology `yaml:"topology"`
}

// RedisConfig — кэш поиска заказов.
type RedisConfig struct {
	// Addr — адрес Redis. Пусто — кэш выключен.
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// PipelineConfig — обработка входящей очереди.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
	Prefetch    int `yaml:"prefetch"`

	// AckDegraded — подтверждать сообщения при недоступном downstream.
	AckDegraded bool `yaml:"ack_degraded"`
}

// OutboundConfig — публикация downstream.
type OutboundConfig struct {
	PublishTimeout time.Duration          `yaml:"publish_timeout"`
	Breaker        outbound.BreakerConfig `yaml:"breaker"`
}

// MonitorConfig — периодическая проверка очередей.
type MonitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// HTTPConfig — служебный HTTP сервер.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Addr возвращает адрес для http.Server.
func (c HTTPConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Default возвращает конфигурацию для локальной разработки.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:     DriverPostgres,
			DSN:        repo.DefaultDSN,
			MaxConns:   10,
			SQLitePath: "orderflow.db",
			Timeout:    5 * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			URL:      mq.DefaultURL(),
			Topology: mq.DefaultTopology(),
		},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Concurrency: 4,
		},
		Outbound: OutboundConfig{
			PublishTimeout: 5 * time.Second,
			Breaker: outbound.BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
	}
}

// Load читает конфигурацию. Пустой path заменяется значением
// ORDERFLOW_CONFIG; если и оно пусто, файл не читается.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// decode накладывает YAML на cfg. Неизвестные ключи — ошибка.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv применяет переменные окружения поверх файла.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DB_URL"); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := lookup("STORE_DRIVER"); ok && v != "" {
		c.Store.Driver = v
	}
	if v, ok := lookup("SQLITE_PATH"); ok && v != "" {
		c.Store.SQLitePath = v
	}
	if v, ok := lookup("RABBITMQ_URL"); ok && v != "" {
		c.RabbitMQ.URL = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", DriverPostgres)
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for driver %s", DriverSQLite)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}

	if c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required")
	}
	if err := c.RabbitMQ.Topology.Validate(); err != nil {
		return fmt.Errorf("rabbitmq.%w", err)
	}

	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive")
	}
	if c.Pipeline.Prefetch < 0 {
		return fmt.Errorf("pipeline.prefetch must be >= 0")
	}

	if c.Outbound.PublishTimeout <= 0 {
		return fmt.Errorf("outbound.publish_timeout must be positive")
	}

	if c.Monitor.Enabled {
		if err := monitor.ValidateSchedule(c.Monitor.Schedule); err != nil {
			return fmt.Errorf("monitor.schedule: %w", err)
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}

	return nil
}
