// Package sqlite — хранилище заказов на SQLite.
//
// Используется для локальной разработки и тестов: даёт настоящий
// UNIQUE constraint по external_id без поднятия PostgreSQL.
// WAL включается при Open, запись идёт через одно соединение.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

// Store — хранилище заказов в SQLite.
type Store struct {
	db *sql.DB
}

// Open открывает (или создаёт) БД по пути и применяет схему.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate применяет схему. Идемпотентна.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping проверяет доступность БД.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает БД.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert атомарно сохраняет заказ вместе с позициями.
// При конфликте по external_id возвращает repo.ErrAlreadyExists.
func (s *Store) Insert(ctx context.Context, order *domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (external_id, created_at, status, total_value, version)
		VALUES (?, ?, ?, ?, 0)
	`,
		order.ExternalID,
		order.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(order.Status),
		order.TotalValue,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: external_id %s", repo.ErrAlreadyExists, order.ExternalID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for _, item := range order.Items() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_name, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?)
		`, id, item.Position(), item.ProductName, item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	order.ID = id
	order.Version = 0
	return nil
}

// FindByExternalID возвращает заказ по внешнему идентификатору.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	var snap domain.OrderSnapshot
	var createdAt, status string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, created_at, status, total_value, version
		FROM orders
		WHERE external_id = ?
	`, externalID).Scan(
		&snap.ID,
		&snap.ExternalID,
		&createdAt,
		&status,
		&snap.TotalValue,
		&snap.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	snap.Status = domain.OrderStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = ?
		ORDER BY position ASC
	`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.ItemSnapshot
		if err := rows.Scan(&item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		snap.Items = append(snap.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap.Restore(), nil
}

// UpdateStatus сохраняет статус с проверкой версии.
func (s *Store) UpdateStatus(ctx context.Context, order *domain.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, string(order.Status), order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = ?)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return repo.ErrNotFound
		}
		return repo.ErrVersionConflict
	}

	order.Version++
	return nil
}

// CountByExternalID возвращает количество строк с данным external_id.
func (s *Store) CountByExternalID(ctx context.Context, externalID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE external_id = ?`, externalID).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
