package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/repo"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const defaultStoreTimeout = 5 * time.Second

// Store — хранилище заказов с уникальностью по ExternalID.
//
// FindByExternalID возвращает repo.ErrNotFound, если заказа нет.
// Insert атомарен и возвращает repo.ErrAlreadyExists при конфликте.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error)
	Insert(ctx context.Context, order *domain.Order) error
}

// Path — каким путём получен результат.
type Path string

const (
	// PathCreated — этот вызов сохранил заказ.
	PathCreated Path = "created"

	// PathDuplicate — заказ уже был сохранён раньше.
	PathDuplicate Path = "duplicate"

	// PathRaceRecovered — параллельный вызов сохранил заказ первым,
	// результат получен повторным поиском.
	PathRaceRecovered Path = "race_recovered"
)

// Result — результат обработки запроса.
type Result struct {
	Order *domain.Order
	Path  Path
}

// Config — конфигурация Processor.
type Config struct {
	Store Store

	// StoreTimeout — таймаут одного обращения к хранилищу (default: 5s).
	StoreTimeout time.Duration

	// Now — источник времени для CreatedAt (default: time.Now).
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Processor — идемпотентный обработчик заказов.
type Processor struct {
	store        Store
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// New создаёт новый Processor.
func New(cfg Config) *Processor {
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	return &Processor{
		store:        cfg.Store,
		storeTimeout: storeTimeout,
		now:          now,
		logger:       logger,
		metrics:      metrics,
	}
}

// Process возвращает единственный сохранённый заказ для req.ExternalID,
// создавая его при первом вызове.
func (p *Processor) Process(ctx context.Context, req domain.OrderRequest) (*Result, error) {
	// 1. Валидация до любого обращения к хранилищу
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req = req.Normalize()

	logger := telemetry.WithExternalID(p.logger, req.ExternalID)
	logger.Debug("processing order", "items", len(req.Items))

	// 2. Быстрый путь для повторных доставок
	existing, err := p.find(ctx, req.ExternalID)
	if err == nil {
		logger.Warn("order already exists", "order_id", existing.ID)
		return p.result(existing, PathDuplicate), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	// 3. Собираем заказ и считаем total в памяти
	order, err := req.ToOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := order.CalculateTotal(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	// точность timestamptz — микросекунды
	order.CreatedAt = p.now().UTC().Truncate(time.Microsecond)

	// 4. Единственная запись
	err = p.insert(ctx, order)
	if err == nil {
		logger.Info("order created",
			"order_id", order.ID,
			"total_value", order.TotalValue.Decimal.StringFixed(2),
		)
		return p.result(order, PathCreated), nil
	}
	if !errors.Is(err, repo.ErrAlreadyExists) {
		return nil, err
	}

	// 5. Конфликт уникальности — кто-то успел раньше
	logger.Warn("concurrent order creation detected, recovering existing order")

	winner, findErr := p.find(ctx, req.ExternalID)
	if findErr == nil {
		return p.result(winner, PathRaceRecovered), nil
	}
	if errors.Is(findErr, repo.ErrNotFound) {
		logger.Error("order conflicts on external_id but cannot be found", "error", err)
		return nil, fmt.Errorf("%w: external_id %s: %w", ErrRaceInconsistency, req.ExternalID, err)
	}
	return nil, findErr
}

// find ищет заказ с таймаутом. repo.ErrNotFound возвращается как есть.
func (p *Processor) find(ctx context.Context, externalID string) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	order, err := p.store.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find order: %w", ErrStoreUnavailable, err)
	}
	return order, nil
}

// insert сохраняет заказ с таймаутом. repo.ErrAlreadyExists возвращается обёрнутым как есть.
func (p *Processor) insert(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := p.store.Insert(ctx, order); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("%w: insert order: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (p *Processor) result(order *domain.Order, path Path) *Result {
	p.metrics.ProcessTotal.WithLabelValues(string(path)).Inc()
	return &Result{Order: order, Path: path}
}
