package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const (
	defaultTTL = 10 * time.Minute
	orderOp    = "order"
)

// Backend — хранилище, перед которым стоит кэш.
type Backend interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error)
	Insert(ctx context.Context, order *domain.Order) error
}

// StoreConfig — конфигурация CachedStore.
type StoreConfig struct {
	Backend Backend
	Cache   Cache

	// TTL — время жизни записи (default: 10m).
	TTL time.Duration

	Logger *slog.Logger
}

// CachedStore — read-through кэш для FindByExternalID.
type CachedStore struct {
	backend Backend
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedStore создаёт CachedStore.
func NewCachedStore(cfg StoreConfig) *CachedStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CachedStore{
		backend: cfg.Backend,
		cache:   cfg.Cache,
		ttl:     ttl,
		logger:  logger.With("component", "order_cache"),
	}
}

// FindByExternalID ищет заказ в кэше, затем в хранилище.
// Ошибки хранилища (включая repo.ErrNotFound) возвращаются как есть.
func (s *CachedStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	key := s.cache.GenerateKey(orderOp, externalID)

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("cache get failed", "key", key, "error", err)
	case raw != "":
		var order domain.Order
		if err := json.Unmarshal([]byte(raw), &order); err == nil {
			return &order, nil
		}
		s.logger.Warn("cache entry is corrupted", "key", key)
	}

	order, err := s.backend.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	s.put(ctx, order)
	return order, nil
}

// Insert сохраняет заказ в хранилище и кладёт его в кэш.
func (s *CachedStore) Insert(ctx context.Context, order *domain.Order) error {
	if err := s.backend.Insert(ctx, order); err != nil {
		return err
	}

	s.put(ctx, order)
	return nil
}

// Invalidate удаляет заказ из кэша. Вызывается после смены статуса.
func (s *CachedStore) Invalidate(ctx context.Context, externalID string) error {
	return s.cache.Delete(ctx, s.cache.GenerateKey(orderOp, externalID))
}

func (s *CachedStore) put(ctx context.Context, order *domain.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		s.logger.Warn("cache encode failed", "order_id", order.ID, "error", err)
		return
	}

	key := s.cache.GenerateKey(orderOp, order.ExternalID)
	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		telemetry.WithExternalID(s.logger, order.ExternalID).Warn("cache set failed", "error", err)
	}
}
