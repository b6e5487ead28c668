package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order — агрегат заказа.
//
// Order создаётся из входящего сообщения в статусе RECEIVED, становится
// durable одним insert'ом и после CalculateTotal переходит в CALCULATED.
// Позиции хранятся внутри заказа (arena): каждая позиция знает свой слот
// и ExternalID владельца, но не живёт отдельно от заказа.
type Order struct {
	// ID — внутренний идентификатор, назначается хранилищем при первом insert.
	// 0, пока заказ не сохранён.
	ID int64 `json:"id"`

	// ExternalID — внешний идентификатор заказа, ключ идемпотентности.
	// Не меняется после создания.
	ExternalID string `json:"external_id"`

	// CreatedAt — время первой попытки сохранения. Не обновляется.
	CreatedAt time.Time `json:"created_at"`

	// Status — текущий статус заказа.
	Status OrderStatus `json:"status"`

	// TotalValue — сумма line total всех позиций.
	// Invalid, пока total не посчитан.
	TotalValue decimal.NullDecimal `json:"total_value"`

	// Version — токен оптимистичной блокировки. 0 после insert,
	// увеличивается при каждом update.
	Version int64 `json:"version"`

	items []OrderItem
}

// NewOrder создаёт новый заказ в статусе RECEIVED.
func NewOrder(externalID string) *Order {
	return &Order{
		ExternalID: externalID,
		Status:     OrderStatusReceived,
	}
}

// AddItem добавляет позицию в заказ и связывает её с владельцем.
//
// Позиции добавляются только в RECEIVED. Позиция, уже привязанная
// к другому заказу, отклоняется.
func (o *Order) AddItem(item OrderItem) error {
	if o.Status != OrderStatusReceived {
		return fmt.Errorf("%w: add item in %s", ErrInvalidTransition, o.Status)
	}
	if item.owner != "" && item.owner != o.ExternalID {
		return fmt.Errorf("%w: owner %q", ErrItemAttached, item.owner)
	}

	item.owner = o.ExternalID
	item.position = len(o.items)
	o.items = append(o.items, item)
	return nil
}

// Items возвращает копию позиций в порядке добавления.
func (o *Order) Items() []OrderItem {
	out := make([]OrderItem, len(o.items))
	copy(out, o.items)
	return out
}

// Item возвращает позицию по номеру слота.
func (o *Order) Item(position int) (OrderItem, bool) {
	if position < 0 || position >= len(o.items) {
		return OrderItem{}, false
	}
	return o.items[position], true
}

// ItemCount возвращает количество позиций.
func (o *Order) ItemCount() int {
	return len(o.items)
}

// IsPersisted возвращает true, если хранилище уже назначило ID.
func (o *Order) IsPersisted() bool {
	return o.ID != 0
}

// CalculateTotal считает TotalValue как сумму line total позиций
// и переводит заказ в CALCULATED.
//
// Повторный вызов на CALCULATED пересчитывает ту же сумму.
func (o *Order) CalculateTotal() error {
	switch o.Status {
	case OrderStatusReceived, OrderStatusCalculated:
	default:
		return fmt.Errorf("%w: calculate total in %s", ErrInvalidTransition, o.Status)
	}

	if len(o.items) == 0 {
		return ErrNoItems
	}

	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.LineTotal())
	}
	if total.IsNegative() {
		return ErrNegativeTotal
	}

	o.TotalValue = decimal.NewNullDecimal(total)
	o.Status = OrderStatusCalculated
	return nil
}

// MarkProcessed переводит заказ в PROCESSED.
func (o *Order) MarkProcessed() error {
	return o.TransitionTo(OrderStatusProcessed)
}

// MarkFailed переводит заказ в ERROR.
func (o *Order) MarkFailed() error {
	return o.TransitionTo(OrderStatusError)
}

// TransitionTo переводит заказ в next, если переход допустим.
// В CALCULATED попасть можно только через CalculateTotal.
func (o *Order) TransitionTo(next OrderStatus) error {
	if next == OrderStatusCalculated || !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// Clone возвращает независимую копию заказа.
func (o *Order) Clone() *Order {
	c := *o
	c.items = o.Items()
	return &c
}

// OrderSnapshot — плоское представление заказа для хранилищ и кэша.
type OrderSnapshot struct {
	ID         int64               `json:"id"`
	ExternalID string              `json:"external_id"`
	CreatedAt  time.Time           `json:"created_at"`
	Status     OrderStatus         `json:"status"`
	TotalValue decimal.NullDecimal `json:"total_value"`
	Version    int64               `json:"version"`
	Items      []ItemSnapshot      `json:"items"`
}

// ItemSnapshot — плоское представление позиции.
type ItemSnapshot struct {
	ProductName string              `json:"product_name"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Quantity    int                 `json:"quantity"`
}

// Snapshot возвращает плоское представление заказа.
func (o *Order) Snapshot() OrderSnapshot {
	items := make([]ItemSnapshot, len(o.items))
	for i, item := range o.items {
		items[i] = ItemSnapshot{
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		}
	}

	return OrderSnapshot{
		ID:         o.ID,
		ExternalID: o.ExternalID,
		CreatedAt:  o.CreatedAt,
		Status:     o.Status,
		TotalValue: o.TotalValue,
		Version:    o.Version,
		Items:      items,
	}
}

// Restore восстанавливает заказ из сохранённого состояния.
// Статус и total берутся как есть, без повторного расчёта.
func (s OrderSnapshot) Restore() *Order {
	o := &Order{
		ID:         s.ID,
		ExternalID: s.ExternalID,
		CreatedAt:  s.CreatedAt,
		Status:     s.Status,
		TotalValue: s.TotalValue,
		Version:    s.Version,
		items:      make([]OrderItem, 0, len(s.Items)),
	}

	for i, item := range s.Items {
		o.items = append(o.items, OrderItem{
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			position:    i,
			owner:       s.ExternalID,
		})
	}
	return o
}

// MarshalJSON сериализует заказ вместе с позициями.
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Snapshot())
}

// UnmarshalJSON восстанавливает заказ из JSON.
func (o *Order) UnmarshalJSON(data []byte) error {
	var s OrderSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = *s.Restore()
	return nil
}

// OrderItem — позиция заказа.
type OrderItem struct {
	// ProductName — название товара.
	ProductName string

	// UnitPrice — цена за единицу, 2 знака после запятой.
	UnitPrice decimal.NullDecimal

	// Quantity — количество, больше нуля.
	Quantity int

	// position — слот позиции в заказе-владельце.
	position int

	// owner — ExternalID заказа-владельца. Пусто, пока позиция не привязана.
	owner string
}

// NewOrderItem создаёт непривязанную позицию.
func NewOrderItem(productName string, unitPrice decimal.Decimal, quantity int) OrderItem {
	return OrderItem{
		ProductName: productName,
		UnitPrice:   decimal.NewNullDecimal(unitPrice),
		Quantity:    quantity,
		position:    -1,
	}
}

// LineTotal возвращает UnitPrice × Quantity.
// Если цена или количество отсутствуют, возвращает ноль.
func (i OrderItem) LineTotal() decimal.Decimal {
	if !i.UnitPrice.Valid || i.Quantity == 0 {
		return decimal.Zero
	}
	return i.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Position возвращает слот позиции в заказе, -1 для непривязанной.
func (i OrderItem) Position() int {
	if i.owner == "" {
		return -1
	}
	return i.position
}

// Owner возвращает ExternalID заказа-владельца.
func (i OrderItem) Owner() string {
	return i.owner
}

// IsAttached возвращает true, если позиция привязана к заказу.
func (i OrderItem) IsAttached() bool {
	return i.owner != ""
}
