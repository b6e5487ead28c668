package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/OrderFlow/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// pgUniqueViolation — SQLSTATE нарушения уникальности.
const pgUniqueViolation = "23505"

// OrderRepo — репозиторий заказов в PostgreSQL.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Migrate применяет схему. Идемпотентна.
func (r *OrderRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping проверяет доступность БД.
func (r *OrderRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул.
func (r *OrderRepo) Close() error {
	r.pool.Close()
	return nil
}

// Insert атомарно сохраняет заказ вместе с позициями.
//
// При конфликте по external_id возвращает ErrAlreadyExists.
// При успехе проставляет order.ID и order.Version.
func (r *OrderRepo) Insert(ctx context.Context, order *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (external_id, created_at, status, total_value, version)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id, version
	`
	var id, version int64
	err = tx.QueryRow(ctx, query,
		order.ExternalID,
		order.CreatedAt,
		order.Status,
		order.TotalValue,
	).Scan(&id, &version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: external_id %s", ErrAlreadyExists, order.ExternalID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range order.Items() {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5)
		`, id, item.Position(), item.ProductName, item.UnitPrice, item.Quantity)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: external_id %s", ErrAlreadyExists, order.ExternalID)
		}
		return fmt.Errorf("commit: %w", err)
	}

	order.ID = id
	order.Version = version
	return nil
}

// FindByExternalID возвращает заказ по внешнему идентификатору.
func (r *OrderRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	query := `
		SELECT id, external_id, created_at, status, total_value, version
		FROM orders
		WHERE external_id = $1
	`
	snapshot, err := r.scanOrder(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, err
	}

	items, err := r.listItems(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	snapshot.Items = items

	return snapshot.Restore(), nil
}

// UpdateStatus сохраняет статус заказа с проверкой версии.
//
// Если версия в БД отличается от order.Version, возвращает ErrVersionConflict.
// При успехе увеличивает order.Version.
func (r *OrderRepo) UpdateStatus(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $3, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query, order.ID, order.Version, order.Status)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	order.Version++
	return nil
}

// --- Helpers ---

// scanOrder сканирует строку заказа без позиций.
func (r *OrderRepo) scanOrder(row pgx.Row) (*domain.OrderSnapshot, error) {
	var s domain.OrderSnapshot

	err := row.Scan(
		&s.ID,
		&s.ExternalID,
		&s.CreatedAt,
		&s.Status,
		&s.TotalValue,
		&s.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &s, nil
}

// listItems возвращает позиции заказа в порядке слотов.
func (r *OrderRepo) listItems(ctx context.Context, orderID int64) ([]domain.ItemSnapshot, error) {
	query := `
		SELECT product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.ItemSnapshot
	for rows.Next() {
		var item domain.ItemSnapshot
		if err := rows.Scan(&item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// isUniqueViolation проверяет, что ошибка — нарушение уникальности.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
