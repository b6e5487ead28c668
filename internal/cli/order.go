package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/shaiso/OrderFlow/internal/app"
	"github.com/shaiso/OrderFlow/internal/cache"
	"github.com/shaiso/OrderFlow/internal/config"
	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/outbound"
	"github.com/shaiso/OrderFlow/internal/repo"
)

// NewOrderCmd создаёт группу команд для заказов.
func NewOrderCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and manage stored orders",
	}

	cmd.AddCommand(
		newOrderGetCmd(env),
		newOrderMarkCmd(env),
	)

	return cmd
}

func newOrderGetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "get EXTERNAL_ID",
		Short: "Show a stored order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}

			store, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			externalID := domain.NormalizeKey(args[0])
			order, err := store.FindByExternalID(cmd.Context(), externalID)
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("order %s not found", externalID)
			}
			if err != nil {
				return err
			}

			msg := outbound.NewOrderMessage(order)
			env.Output().Order(&msg)
			return nil
		},
	}
}

func newOrderMarkCmd(env *Env) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "mark EXTERNAL_ID",
		Short: "Move a stored order to PROCESSED or ERROR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseOrderStatus(status)
			if err != nil {
				return err
			}

			cfg, err := env.Config()
			if err != nil {
				return err
			}

			store, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			order, err := markOrder(cmd.Context(), store, args[0], target)
			if err != nil {
				return err
			}

			if cfg.Redis.Addr != "" {
				invalidateCached(cmd.Context(), env, cfg, store, order.ExternalID)
			}

			out := env.Output()
			out.Success(fmt.Sprintf("Order %s marked %s", order.ExternalID, order.Status))
			msg := outbound.NewOrderMessage(order)
			out.Order(&msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Target status (PROCESSED, ERROR)")
	cmd.MarkFlagRequired("status")

	return cmd
}

// statusStore — операции хранилища, нужные markOrder.
type statusStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order) error
}

// markOrder переводит заказ в target с проверкой версии.
// externalID нормализуется так же, как при приёме заказа.
func markOrder(ctx context.Context, store statusStore, externalID string, target domain.OrderStatus) (*domain.Order, error) {
	externalID = domain.NormalizeKey(externalID)

	order, err := store.FindByExternalID(ctx, externalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("order %s not found", externalID)
	}
	if err != nil {
		return nil, err
	}

	if err := order.TransitionTo(target); err != nil {
		return nil, fmt.Errorf("order %s: %w", externalID, err)
	}

	if err := store.UpdateStatus(ctx, order); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return nil, fmt.Errorf("order %s was modified concurrently, retry: %w", externalID, err)
		}
		return nil, err
	}

	return order, nil
}

func invalidateCached(ctx context.Context, env *Env, cfg config.Config, store app.OrderStore, externalID string) {
	redis := cache.NewRedisCache(cfg.Redis.Addr, "orderflow")
	defer redis.Close()

	cached := cache.NewCachedStore(cache.StoreConfig{Backend: store, Cache: redis})
	if err := cached.Invalidate(ctx, externalID); err != nil {
		env.Output().Error(fmt.Sprintf("cache invalidation failed: %v", err))
	}
}

// NewMigrateCmd создаёт команду применения схемы хранилища.
func NewMigrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the order store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}

			// OpenStore применяет схему
			store, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			env.Output().Success(fmt.Sprintf("Schema applied (%s)", cfg.Store.Driver))
			return nil
		},
	}
}

// NewStatusCmd создаёт команду проверки готовности order-ingestor.
func NewStatusCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show order-ingestor readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ready, err := env.Client().Ready()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(ready.Checks))
			for _, name := range slices.Sorted(maps.Keys(ready.Checks)) {
				rows = append(rows, []string{name, ready.Checks[name]})
			}

			out := env.Output()
			out.Print([]string{"CHECK", "RESULT"}, rows, ready)
			if ready.Status != "ready" {
				return fmt.Errorf("service is %s", ready.Status)
			}
			return nil
		},
	}
}
