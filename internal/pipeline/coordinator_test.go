package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/mq"
	"github.com/shaiso/OrderFlow/internal/outbound"
	"github.com/shaiso/OrderFlow/internal/processor"
	"github.com/shaiso/OrderFlow/internal/repo"
	"github.com/shaiso/OrderFlow/internal/repo/memstore"
	"github.com/shaiso/OrderFlow/internal/telemetry"
)

const validBody = `{"externalId":"EXT-1","items":[{"productName":"A","unitPrice":10.00,"quantity":2}]}`

// --- Fakes ---

// fakePublisher возвращает заданный результат и запоминает заказы.
type fakePublisher struct {
	mu     sync.Mutex
	result outbound.Result
	err    error
	orders []*domain.Order
}

func (p *fakePublisher) Publish(_ context.Context, order *domain.Order) (outbound.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orders = append(p.orders, order.Clone())
	if p.err != nil {
		return outbound.Result{}, p.err
	}
	if p.result.Degraded {
		return p.result, nil
	}
	return outbound.Result{Message: outbound.NewOrderMessage(order), MessageID: "m-1"}, nil
}

// errProcessor всегда возвращает ошибку.
type errProcessor struct{ err error }

func (p errProcessor) Process(context.Context, domain.OrderRequest) (*processor.Result, error) {
	return nil, p.err
}

func newCoordinator(proc Processor, pub Publisher, ackDegraded bool, metrics *telemetry.Metrics) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		Processor:   proc,
		Publisher:   pub,
		AckDegraded: ackDegraded,
		Logger:      telemetry.NopLogger(),
		Metrics:     metrics,
	})
}

func newProcessor(store processor.Store) *processor.Processor {
	return processor.New(processor.Config{Store: store, Logger: telemetry.NopLogger()})
}

// --- Tests ---

func TestCoordinator_Handle_Processed(t *testing.T) {
	store := memstore.New()
	pub := &fakePublisher{}
	c := newCoordinator(newProcessor(store), pub, false, nil)

	out := c.Handle(context.Background(), []byte(validBody))

	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeProcessed, out.Kind)
	assert.Equal(t, mq.DecisionAck, out.Decision)
	assert.True(t, out.Acked())
	assert.Equal(t, processor.PathCreated, out.Path)
	assert.Equal(t, domain.OrderStatusProcessed, out.Order.Status)
	assert.Equal(t, "20.00", out.Order.TotalValue.Decimal.StringFixed(2))
	assert.Equal(t, "m-1", out.Publish.MessageID)

	// опубликован рассчитанный заказ
	require.Len(t, pub.orders, 1)
	assert.Equal(t, domain.OrderStatusCalculated, pub.orders[0].Status)

	// статус отчёта не попадает в хранилище
	stored, err := store.FindByExternalID(context.Background(), "EXT-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCalculated, stored.Status)
}

func TestCoordinator_Handle_DuplicateDelivery(t *testing.T) {
	store := memstore.New()
	pub := &fakePublisher{}
	c := newCoordinator(newProcessor(store), pub, false, nil)
	ctx := context.Background()

	first := c.Handle(ctx, []byte(validBody))
	second := c.Handle(ctx, []byte(validBody))

	assert.Equal(t, OutcomeProcessed, second.Kind)
	assert.Equal(t, processor.PathDuplicate, second.Path)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, store.Len())
	assert.Len(t, pub.orders, 2)
}

func TestCoordinator_Handle_Degraded(t *testing.T) {
	tests := []struct {
		name         string
		ackDegraded  bool
		wantDecision mq.Decision
	}{
		{"dead letter by default", false, mq.DecisionDeadLetter},
		{"ack when configured", true, mq.DecisionAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			pub := &fakePublisher{result: outbound.Result{
				Message:  outbound.FallbackMessage("EXT-1"),
				Degraded: true,
			}}
			c := newCoordinator(newProcessor(store), pub, tt.ackDegraded, nil)

			out := c.Handle(context.Background(), []byte(validBody))

			assert.Equal(t, OutcomeDegraded, out.Kind)
			assert.Equal(t, tt.wantDecision, out.Decision)
			assert.NoError(t, out.Err)
			assert.Equal(t, domain.OrderStatusError, out.Order.Status)
			assert.True(t, out.Publish.Degraded)
			assert.Nil(t, out.Publish.Message.OrderID)

			// заказ сохранён, несмотря на недоступный downstream
			assert.Equal(t, 1, store.Len())
		})
	}
}

func TestCoordinator_Handle_PublishFailureRetries(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("%w: channel closed", outbound.ErrPublishFailed)}
	c := newCoordinator(newProcessor(memstore.New()), pub, false, nil)

	out := c.Handle(context.Background(), []byte(validBody))

	assert.Equal(t, OutcomeTransient, out.Kind)
	assert.Equal(t, mq.DecisionRetry, out.Decision)
	assert.ErrorIs(t, out.Err, outbound.ErrPublishFailed)
	assert.Equal(t, domain.OrderStatusError, out.Order.Status)
}

func TestCoordinator_Handle_InvalidMessages(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"not json", `{"externalId":`, ErrMalformedMessage},
		{"bad price", `{"externalId":"EXT-1","items":[{"productName":"A","unitPrice":"ten","quantity":1}]}`, ErrMalformedMessage},
		{"no items", `{"externalId":"EXT-1","items":[]}`, processor.ErrInvalidRequest},
		{"missing external id", `{"items":[{"productName":"A","unitPrice":1,"quantity":1}]}`, processor.ErrInvalidRequest},
		{"three decimals", `{"externalId":"EXT-1","items":[{"productName":"A","unitPrice":1.005,"quantity":1}]}`, processor.ErrInvalidRequest},
		{"price beyond storage", `{"externalId":"EXT-9","items":[{"productName":"A","unitPrice":100000000000000000000.00,"quantity":1}]}`, processor.ErrInvalidRequest},
		{"quantity beyond storage", `{"externalId":"EXT-9","items":[{"productName":"A","unitPrice":1.00,"quantity":3000000000}]}`, processor.ErrInvalidRequest},
		{"total beyond storage", `{"externalId":"EXT-9","items":[{"productName":"A","unitPrice":99999999999.99,"quantity":2000000}]}`, processor.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			pub := &fakePublisher{}
			c := newCoordinator(newProcessor(store), pub, false, nil)

			out := c.Handle(context.Background(), []byte(tt.body))

			assert.Equal(t, OutcomeInvalid, out.Kind)
			assert.Equal(t, mq.DecisionDeadLetter, out.Decision)
			assert.ErrorIs(t, out.Err, tt.wantErr)
			assert.Nil(t, out.Order)
			assert.Zero(t, store.Len())
			assert.Empty(t, pub.orders)
		})
	}
}

func TestCoordinator_Handle_ProcessorFailures(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantKind     OutcomeKind
		wantDecision mq.Decision
	}{
		{
			"store unavailable",
			fmt.Errorf("%w: timeout", processor.ErrStoreUnavailable),
			OutcomeTransient, mq.DecisionRetry,
		},
		{
			"race inconsistency",
			fmt.Errorf("%w: %w", processor.ErrRaceInconsistency, repo.ErrAlreadyExists),
			OutcomeRaceInconsistency, mq.DecisionDeadLetter,
		},
		{
			"unknown error",
			errors.New("boom"),
			OutcomeTransient, mq.DecisionRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			c := newCoordinator(errProcessor{tt.err}, pub, false, nil)

			out := c.Handle(context.Background(), []byte(validBody))

			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantDecision, out.Decision)
			assert.False(t, out.Acked())
			assert.ErrorIs(t, out.Err, tt.err)
			assert.Empty(t, pub.orders)
		})
	}
}

func TestCoordinator_Handle_TerminalDuplicateKeepsStatus(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	o := domain.NewOrder("EXT-1")
	require.NoError(t, o.AddItem(domain.NewOrderItem("A", decimal.RequireFromString("10.00"), 2)))
	require.NoError(t, o.CalculateTotal())
	require.NoError(t, o.MarkFailed())
	require.NoError(t, store.Insert(ctx, o))

	c := newCoordinator(newProcessor(store), &fakePublisher{}, false, nil)
	out := c.Handle(ctx, []byte(validBody))

	assert.Equal(t, OutcomeProcessed, out.Kind)
	assert.Equal(t, domain.OrderStatusError, out.Order.Status)
}

func TestCoordinator_Handle_RecordsMetrics(t *testing.T) {
	metrics := telemetry.NopMetrics()
	c := newCoordinator(newProcessor(memstore.New()), &fakePublisher{}, false, metrics)
	ctx := context.Background()

	c.Handle(ctx, []byte(validBody))
	c.Handle(ctx, []byte(`not json`))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesTotal.WithLabelValues(string(OutcomeProcessed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesTotal.WithLabelValues(string(OutcomeInvalid))))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ProcessingDuration))
}

func TestService_HandleDelivery(t *testing.T) {
	c := newCoordinator(newProcessor(memstore.New()), &fakePublisher{}, false, nil)
	s := NewService(ServiceConfig{Coordinator: c, Queue: "q.orders.import", Logger: telemetry.NopLogger()})

	decision := s.handleDelivery(context.Background(), &mq.Delivery{Raw: amqp.Delivery{
		MessageId: "m-1",
		Body:      []byte(validBody),
		Headers:   amqp.Table{"x-delivery-count": int64(1)},
	}})
	assert.Equal(t, mq.DecisionAck, decision)

	decision = s.handleDelivery(context.Background(), &mq.Delivery{Raw: amqp.Delivery{Body: []byte(`[]`)}})
	assert.Equal(t, mq.DecisionDeadLetter, decision)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(ServiceConfig{})
	assert.Equal(t, defaultConcurrency, s.concurrency)
	assert.Equal(t, defaultConcurrency, s.prefetch)

	s = NewService(ServiceConfig{Concurrency: 2, Prefetch: 10})
	assert.Equal(t, 2, s.concurrency)
	assert.Equal(t, 10, s.prefetch)
}

func TestService_StopWithoutStart(t *testing.T) {
	s := NewService(ServiceConfig{Logger: telemetry.NopLogger()})

	s.Stop()
	s.Stop()

	assert.True(t, s.IsStopped())
}
