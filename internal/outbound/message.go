package outbound

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaiso/OrderFlow/internal/domain"
)

// Amount — денежная сумма в JSON: число с двумя знаками или null.
type Amount decimal.NullDecimal

// MarshalJSON рендерит сумму как 20.00, а не "20" или "20.00".
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Decimal.StringFixed(2)), nil
}

// UnmarshalJSON читает число, строку или null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var nd decimal.NullDecimal
	if err := nd.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = Amount(nd)
	return nil
}

// OrderMessage — сообщение о рассчитанном заказе.
type OrderMessage struct {
	OrderID    *int64        `json:"orderId"`
	ExternalID string        `json:"externalId"`
	TotalValue Amount        `json:"totalValue"`
	Status     string        `json:"status"`
	CreatedAt  *time.Time    `json:"createdAt"`
	Items      []ItemMessage `json:"items"`
}

// ItemMessage — позиция в OrderMessage.
type ItemMessage struct {
	ProductName string `json:"productName"`
	UnitPrice   Amount `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	TotalAmount Amount `json:"totalAmount"`
}

// NewOrderMessage строит сообщение из заказа.
func NewOrderMessage(order *domain.Order) OrderMessage {
	id := order.ID
	createdAt := order.CreatedAt.UTC()

	items := make([]ItemMessage, 0, order.ItemCount())
	for _, item := range order.Items() {
		items = append(items, ItemMessage{
			ProductName: item.ProductName,
			UnitPrice:   Amount(item.UnitPrice),
			Quantity:    item.Quantity,
			TotalAmount: Amount(decimal.NewNullDecimal(item.LineTotal())),
		})
	}

	return OrderMessage{
		OrderID:    &id,
		ExternalID: order.ExternalID,
		TotalValue: Amount(order.TotalValue),
		Status:     string(order.Status),
		CreatedAt:  &createdAt,
		Items:      items,
	}
}

// FallbackMessage — сообщение, которое отдаётся вместо отправки
// при разомкнутом breaker.
func FallbackMessage(externalID string) OrderMessage {
	return OrderMessage{
		ExternalID: externalID,
		Status:     string(domain.OrderStatusError),
	}
}
