package app

import (
	"context"
	"fmt"

	"github.com/shaiso/OrderFlow/internal/config"
	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/processor"
	"github.com/shaiso/OrderFlow/internal/repo"
	"github.com/shaiso/OrderFlow/internal/repo/memstore"
	"github.com/shaiso/OrderFlow/internal/repo/sqlite"
)

// OrderStore — хранилище заказов со служебными операциями.
type OrderStore interface {
	processor.Store

	UpdateStatus(ctx context.Context, order *domain.Order) error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ OrderStore = (*repo.OrderRepo)(nil)
	_ OrderStore = (*sqlite.Store)(nil)
	_ OrderStore = (*memstore.Store)(nil)
)

// OpenStore открывает хранилище по cfg.Driver и применяет схему.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (OrderStore, error) {
	var store OrderStore

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = repo.NewOrderRepo(pool)

	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store = s

	case config.DriverMemory:
		store = memstore.New()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}

	return store, nil
}
