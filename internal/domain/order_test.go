package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCalculatedOrder(t *testing.T) *Order {
	t.Helper()

	o := NewOrder("EXT-1")
	require.NoError(t, o.AddItem(NewOrderItem("A", price("10.00"), 2)))
	require.NoError(t, o.CalculateTotal())
	return o
}

// --- OrderItem ---

func TestOrderItem_LineTotal(t *testing.T) {
	item := NewOrderItem("A", price("10.50"), 3)
	assert.True(t, item.LineTotal().Equal(price("31.50")))
}

func TestOrderItem_LineTotal_AbsentOperands(t *testing.T) {
	noPrice := OrderItem{ProductName: "A", Quantity: 2}
	assert.True(t, noPrice.LineTotal().IsZero())

	noQuantity := NewOrderItem("A", price("10.00"), 0)
	assert.True(t, noQuantity.LineTotal().IsZero())
}

func TestOrderItem_Detached(t *testing.T) {
	item := NewOrderItem("A", price("1.00"), 1)

	assert.False(t, item.IsAttached())
	assert.Equal(t, -1, item.Position())
	assert.Empty(t, item.Owner())
}

// --- AddItem ---

func TestOrder_AddItem_LinksOwner(t *testing.T) {
	o := NewOrder("EXT-1")
	require.NoError(t, o.AddItem(NewOrderItem("A", price("1.00"), 1)))
	require.NoError(t, o.AddItem(NewOrderItem("B", price("2.00"), 1)))

	require.Equal(t, 2, o.ItemCount())
	for i, item := range o.Items() {
		assert.Equal(t, "EXT-1", item.Owner())
		assert.Equal(t, i, item.Position())
	}

	second, ok := o.Item(1)
	require.True(t, ok)
	assert.Equal(t, "B", second.ProductName)

	_, ok = o.Item(2)
	assert.False(t, ok)
}

func TestOrder_AddItem_RejectsForeignItem(t *testing.T) {
	first := NewOrder("EXT-1")
	require.NoError(t, first.AddItem(NewOrderItem("A", price("1.00"), 1)))

	attached, _ := first.Item(0)

	second := NewOrder("EXT-2")
	err := second.AddItem(attached)
	assert.ErrorIs(t, err, ErrItemAttached)
	assert.Zero(t, second.ItemCount())
}

func TestOrder_AddItem_AfterCalculate(t *testing.T) {
	o := newCalculatedOrder(t)

	err := o.AddItem(NewOrderItem("B", price("1.00"), 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, o.ItemCount())
}

func TestOrder_Items_ReturnsCopy(t *testing.T) {
	o := newCalculatedOrder(t)

	items := o.Items()
	items[0].ProductName = "changed"

	item, _ := o.Item(0)
	assert.Equal(t, "A", item.ProductName)
}

// --- CalculateTotal ---

func TestOrder_CalculateTotal(t *testing.T) {
	o := NewOrder("EXT-1")
	require.NoError(t, o.AddItem(NewOrderItem("A", price("10.00"), 2)))
	require.NoError(t, o.AddItem(NewOrderItem("B", price("0.10"), 3)))
	require.NoError(t, o.AddItem(NewOrderItem("C", price("0.20"), 1)))

	require.NoError(t, o.CalculateTotal())

	assert.Equal(t, OrderStatusCalculated, o.Status)
	require.True(t, o.TotalValue.Valid)
	assert.Equal(t, "20.50", o.TotalValue.Decimal.StringFixed(2))
}

func TestOrder_CalculateTotal_Idempotent(t *testing.T) {
	o := newCalculatedOrder(t)
	first := o.TotalValue.Decimal

	require.NoError(t, o.CalculateTotal())

	assert.Equal(t, OrderStatusCalculated, o.Status)
	assert.True(t, first.Equal(o.TotalValue.Decimal))
}

func TestOrder_CalculateTotal_NoItems(t *testing.T) {
	o := NewOrder("EXT-1")

	err := o.CalculateTotal()
	assert.ErrorIs(t, err, ErrNoItems)
	assert.Equal(t, OrderStatusReceived, o.Status)
	assert.False(t, o.TotalValue.Valid)
}

func TestOrder_CalculateTotal_Negative(t *testing.T) {
	o := NewOrder("EXT-1")
	require.NoError(t, o.AddItem(NewOrderItem("refund", price("-5.00"), 1)))

	assert.ErrorIs(t, o.CalculateTotal(), ErrNegativeTotal)
	assert.Equal(t, OrderStatusReceived, o.Status)
}

func TestOrder_CalculateTotal_Terminal(t *testing.T) {
	o := newCalculatedOrder(t)
	require.NoError(t, o.MarkProcessed())

	assert.ErrorIs(t, o.CalculateTotal(), ErrInvalidTransition)
	assert.Equal(t, OrderStatusProcessed, o.Status)
}

// --- Lifecycle ---

func TestOrder_Lifecycle_Forward(t *testing.T) {
	o := newCalculatedOrder(t)
	require.NoError(t, o.MarkFailed())
	assert.Equal(t, OrderStatusError, o.Status)
}

func TestOrder_Lifecycle_NoBackwardTransitions(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
	}{
		{"received to processed", OrderStatusReceived, OrderStatusProcessed},
		{"received to error", OrderStatusReceived, OrderStatusError},
		{"calculated to received", OrderStatusCalculated, OrderStatusReceived},
		{"calculated to calculated", OrderStatusCalculated, OrderStatusCalculated},
		{"processed to error", OrderStatusProcessed, OrderStatusError},
		{"processed to received", OrderStatusProcessed, OrderStatusReceived},
		{"error to processed", OrderStatusError, OrderStatusProcessed},
		{"error to calculated", OrderStatusError, OrderStatusCalculated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{ExternalID: "EXT-1", Status: tt.from}

			err := o.TransitionTo(tt.to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, o.Status)
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, OrderStatusReceived.IsTerminal())
	assert.False(t, OrderStatusCalculated.IsTerminal())
	assert.True(t, OrderStatusProcessed.IsTerminal())
	assert.True(t, OrderStatusError.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("PROCESSED")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusProcessed, s)

	_, err = ParseOrderStatus("DONE")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

// --- Snapshot / JSON ---

func TestOrder_JSONRoundTripKeepsOwnership(t *testing.T) {
	o := newCalculatedOrder(t)
	o.ID = 42
	o.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var restored Order
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, int64(42), restored.ID)
	assert.Equal(t, OrderStatusCalculated, restored.Status)
	assert.True(t, restored.TotalValue.Decimal.Equal(price("20.00")))
	require.Equal(t, 1, restored.ItemCount())

	item, _ := restored.Item(0)
	assert.Equal(t, "EXT-1", item.Owner())
	assert.Equal(t, 0, item.Position())
}

func TestOrder_Clone(t *testing.T) {
	o := newCalculatedOrder(t)
	c := o.Clone()

	require.NoError(t, c.MarkProcessed())

	assert.Equal(t, OrderStatusCalculated, o.Status)
	assert.Equal(t, OrderStatusProcessed, c.Status)
	assert.Equal(t, o.ItemCount(), c.ItemCount())
}
