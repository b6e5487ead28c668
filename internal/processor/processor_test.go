package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/repo"
	"github.com/shaiso/OrderFlow/internal/repo/memstore"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

// --- Helpers ---

func request(externalID string) domain.OrderRequest {
	return domain.OrderRequest{
		ExternalID: externalID,
		Items: []domain.ItemRequest{
			{ProductName: "A", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
		},
	}
}

func newProcessor(store Store) *Processor {
	return New(Config{
		Store:        store,
		StoreTimeout: time.Second,
		Logger:       telemetry.NopLogger(),
	})
}

// scriptedStore — хранилище с подменяемым поведением и счётчиками вызовов.
type scriptedStore struct {
	mu          sync.Mutex
	findCalls   int
	insertCalls int

	find   func(call int, externalID string) (*domain.Order, error)
	insert func(order *domain.Order) error
}

func (s *scriptedStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	s.mu.Lock()
	s.findCalls++
	call := s.findCalls
	s.mu.Unlock()

	if s.find == nil {
		return nil, repo.ErrNotFound
	}
	return s.find(call, externalID)
}

func (s *scriptedStore) Insert(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	s.insertCalls++
	s.mu.Unlock()

	if s.insert == nil {
		order.ID = 1
		return nil
	}
	return s.insert(order)
}

func winnerOrder(t *testing.T, externalID string) *domain.Order {
	t.Helper()

	o, err := request(externalID).ToOrder()
	require.NoError(t, err)
	require.NoError(t, o.CalculateTotal())
	o.ID = 77
	o.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return o
}

// --- Scenarios ---

func TestProcess_CreatesOrder(t *testing.T) {
	store := memstore.New()
	p := newProcessor(store)

	res, err := p.Process(context.Background(), request("EXT-1"))
	require.NoError(t, err)

	assert.Equal(t, PathCreated, res.Path)
	assert.NotZero(t, res.Order.ID)
	assert.Equal(t, domain.OrderStatusCalculated, res.Order.Status)
	assert.Equal(t, "20.00", res.Order.TotalValue.Decimal.StringFixed(2))
	assert.Equal(t, 1, store.Len())
}

func TestProcess_SecondDeliveryReturnsSameOrder(t *testing.T) {
	store := memstore.New()
	p := newProcessor(store)
	ctx := context.Background()

	first, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)

	second, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)

	assert.Equal(t, PathDuplicate, second.Path)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, first.Order.TotalValue.Decimal.Equal(second.Order.TotalValue.Decimal))
	assert.Equal(t, 1, store.Len())
}

func TestProcess_IdempotentAcrossManyDeliveries(t *testing.T) {
	store := memstore.New()
	p := newProcessor(store)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		res, err := p.Process(ctx, request("EXT-1"))
		require.NoError(t, err)
		ids = append(ids, res.Order.ID)

		assert.Equal(t, "EXT-1", res.Order.ExternalID)
		assert.Equal(t, "20.00", res.Order.TotalValue.Decimal.StringFixed(2))
		assert.Equal(t, 1, res.Order.ItemCount())
	}

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.Len())
}

func TestProcess_NormalizedKeyIsOneOrder(t *testing.T) {
	store := memstore.New()
	p := newProcessor(store)
	ctx := context.Background()

	_, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)

	res, err := p.Process(ctx, request("  EXT-1  "))
	require.NoError(t, err)

	assert.Equal(t, PathDuplicate, res.Path)
	assert.Equal(t, 1, store.Len())
}

func TestProcess_DuplicateIsReturnedUnchanged(t *testing.T) {
	existing := winnerOrder(t, "EXT-1")
	require.NoError(t, existing.MarkProcessed())

	store := &scriptedStore{
		find: func(int, string) (*domain.Order, error) { return existing, nil },
	}

	res, err := newProcessor(store).Process(context.Background(), request("EXT-1"))
	require.NoError(t, err)

	assert.Same(t, existing, res.Order)
	assert.Equal(t, domain.OrderStatusProcessed, res.Order.Status)
	assert.Zero(t, store.insertCalls)
}

func TestProcess_RecoversFromUniquenessConflict(t *testing.T) {
	winner := winnerOrder(t, "EXT-2")

	store := &scriptedStore{
		find: func(call int, _ string) (*domain.Order, error) {
			if call == 1 {
				return nil, repo.ErrNotFound
			}
			return winner, nil
		},
		insert: func(*domain.Order) error {
			return fmt.Errorf("%w: external_id EXT-2", repo.ErrAlreadyExists)
		},
	}

	res, err := newProcessor(store).Process(context.Background(), request("EXT-2"))
	require.NoError(t, err)

	assert.Equal(t, PathRaceRecovered, res.Path)
	assert.Equal(t, winner.ID, res.Order.ID)
	assert.True(t, winner.TotalValue.Decimal.Equal(res.Order.TotalValue.Decimal))
	assert.Equal(t, 2, store.findCalls)
	assert.Equal(t, 1, store.insertCalls)
}

func TestProcess_UnrecoverableRace(t *testing.T) {
	store := &scriptedStore{
		insert: func(*domain.Order) error { return repo.ErrAlreadyExists },
	}

	res, err := newProcessor(store).Process(context.Background(), request("EXT-3"))

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRaceInconsistency)
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, store.findCalls)
}

func TestProcess_ConcurrentDeliveriesConverge(t *testing.T) {
	const callers = 8

	store := &barrierStore{Store: memstore.New(), parties: callers}
	store.gate.Add(callers)
	p := newProcessor(store)

	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Process(context.Background(), request("EXT-2"))
		}(i)
	}
	wg.Wait()

	paths := map[Path]int{}
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Order.ID, results[i].Order.ID)
		assert.True(t, results[0].Order.TotalValue.Decimal.Equal(results[i].Order.TotalValue.Decimal))
		paths[results[i].Path]++
	}

	assert.Equal(t, 1, paths[PathCreated])
	assert.Equal(t, callers-1, paths[PathRaceRecovered])
	assert.Equal(t, 1, store.Store.(*memstore.Store).Len())
}

// barrierStore задерживает первые parties поисков, пока все не дойдут
// до проверки. Так все вызовы гарантированно проходят check до insert.
type barrierStore struct {
	Store
	parties int32
	calls   atomic.Int32
	gate    sync.WaitGroup
}

func (b *barrierStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	if b.calls.Add(1) <= b.parties {
		b.gate.Done()
		b.gate.Wait()
	}
	return b.Store.FindByExternalID(ctx, externalID)
}

// --- Errors ---

func TestProcess_InvalidRequestSkipsStore(t *testing.T) {
	tests := []struct {
		name string
		req  domain.OrderRequest
	}{
		{"empty items", domain.OrderRequest{ExternalID: "EXT-1"}},
		{"blank external id", domain.OrderRequest{ExternalID: " ", Items: request("x").Items}},
		{"zero quantity", domain.OrderRequest{ExternalID: "EXT-1", Items: []domain.ItemRequest{
			{ProductName: "A", UnitPrice: decimal.RequireFromString("1.00"), Quantity: 0},
		}}},
		{"negative price", domain.OrderRequest{ExternalID: "EXT-1", Items: []domain.ItemRequest{
			{ProductName: "A", UnitPrice: decimal.RequireFromString("-1.00"), Quantity: 1},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &scriptedStore{}

			_, err := newProcessor(store).Process(context.Background(), tt.req)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			var verrs domain.ValidationErrors
			assert.ErrorAs(t, err, &verrs)
			assert.Zero(t, store.findCalls)
			assert.Zero(t, store.insertCalls)
		})
	}
}

func TestProcess_FindFailureIsTransient(t *testing.T) {
	cause := errors.New("connection refused")
	store := &scriptedStore{
		find: func(int, string) (*domain.Order, error) { return nil, cause },
	}

	_, err := newProcessor(store).Process(context.Background(), request("EXT-1"))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, store.insertCalls)
}

func TestProcess_InsertFailureIsTransient(t *testing.T) {
	cause := errors.New("disk full")
	store := &scriptedStore{
		insert: func(*domain.Order) error { return cause },
	}

	_, err := newProcessor(store).Process(context.Background(), request("EXT-1"))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, store.findCalls)
}

func TestProcess_RecoveryLookupFailureIsTransient(t *testing.T) {
	cause := errors.New("connection reset")
	store := &scriptedStore{
		find: func(call int, _ string) (*domain.Order, error) {
			if call == 1 {
				return nil, repo.ErrNotFound
			}
			return nil, cause
		},
		insert: func(*domain.Order) error { return repo.ErrAlreadyExists },
	}

	_, err := newProcessor(store).Process(context.Background(), request("EXT-1"))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrRaceInconsistency)
}

func TestProcess_StoreTimeout(t *testing.T) {
	p := New(Config{
		Store:        blockingStore{},
		StoreTimeout: 20 * time.Millisecond,
		Logger:       telemetry.NopLogger(),
	})

	_, err := p.Process(context.Background(), request("EXT-1"))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingStore отвечает только по истечении контекста.
type blockingStore struct{}

func (blockingStore) FindByExternalID(ctx context.Context, _ string) (*domain.Order, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) Insert(ctx context.Context, _ *domain.Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProcess_StampsCreatedAt(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3*3600))

	p := New(Config{
		Store:  memstore.New(),
		Now:    func() time.Time { return fixed },
		Logger: telemetry.NopLogger(),
	})

	res, err := p.Process(context.Background(), request("EXT-1"))
	require.NoError(t, err)

	assert.True(t, fixed.Equal(res.Order.CreatedAt))
	assert.Equal(t, time.UTC, res.Order.CreatedAt.Location())
}

func TestProcess_CreatedAtHasStoragePrecision(t *testing.T) {
	withNanos := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

	p := New(Config{
		Store:  memstore.New(),
		Now:    func() time.Time { return withNanos },
		Logger: telemetry.NopLogger(),
	})
	ctx := context.Background()

	first, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)
	assert.Equal(t, 123456000, first.Order.CreatedAt.Nanosecond())

	again, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)
	assert.Equal(t, PathDuplicate, again.Path)
	assert.True(t, first.Order.CreatedAt.Equal(again.Order.CreatedAt))
}

func TestProcess_RecordsPathMetric(t *testing.T) {
	metrics := telemetry.NopMetrics()
	p := New(Config{
		Store:   memstore.New(),
		Logger:  telemetry.NopLogger(),
		Metrics: metrics,
	})
	ctx := context.Background()

	_, err := p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)
	_, err = p.Process(ctx, request("EXT-1"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, metrics.ProcessTotal.WithLabelValues(string(PathCreated))))
	assert.Equal(t, 1.0, counterValue(t, metrics.ProcessTotal.WithLabelValues(string(PathDuplicate))))
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}
