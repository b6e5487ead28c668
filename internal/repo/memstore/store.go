// Package memstore — хранилище заказов в памяти.
//
// Соблюдает тот же контракт, что и SQL-хранилища: уникальность
// external_id проверяется атомарно внутри Insert. Используется
// в тестах и драйвером "memory" для локального запуска.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/repo"
)

// Store — потокобезопасное хранилище заказов.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	byExt  map[string]*domain.Order
	byID   map[int64]*domain.Order
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		byExt: make(map[string]*domain.Order),
		byID:  make(map[int64]*domain.Order),
	}
}

// Insert сохраняет копию заказа. При конфликте возвращает repo.ErrAlreadyExists.
func (s *Store) Insert(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byExt[order.ExternalID]; ok {
		return fmt.Errorf("%w: external_id %s", repo.ErrAlreadyExists, order.ExternalID)
	}

	s.nextID++
	order.ID = s.nextID
	order.Version = 0

	stored := order.Clone()
	s.byExt[stored.ExternalID] = stored
	s.byID[stored.ID] = stored
	return nil
}

// FindByExternalID возвращает копию заказа или repo.ErrNotFound.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.byExt[externalID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return order.Clone(), nil
}

// UpdateStatus сохраняет статус с проверкой версии.
func (s *Store) UpdateStatus(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[order.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Version != order.Version {
		return repo.ErrVersionConflict
	}

	stored.Status = order.Status
	stored.Version++
	order.Version = stored.Version
	return nil
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// Migrate ничего не делает.
func (s *Store) Migrate(context.Context) error { return nil }

// Close ничего не делает.
func (s *Store) Close() error { return nil }

// Len возвращает количество сохранённых заказов.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byExt)
}
