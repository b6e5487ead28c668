package domain

import "fmt"

// OrderStatus — статус заказа.
//
// Жизненный цикл:
//
//	RECEIVED → CALCULATED → PROCESSED
//	                      ↘ ERROR
//
// Переходы только вперёд. PROCESSED и ERROR — финальные.
type OrderStatus string

const (
	// OrderStatusReceived — заказ построен из входящего сообщения, total ещё не посчитан.
	OrderStatusReceived OrderStatus = "RECEIVED"

	// OrderStatusCalculated — total посчитан, заказ готов к отправке дальше.
	OrderStatusCalculated OrderStatus = "CALCULATED"

	// OrderStatusProcessed — заказ успешно отправлен downstream.
	OrderStatusProcessed OrderStatus = "PROCESSED"

	// OrderStatusError — отправка downstream не удалась.
	OrderStatusError OrderStatus = "ERROR"
)

// transitions — допустимые переходы между статусами.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusReceived:   {OrderStatusCalculated},
	OrderStatusCalculated: {OrderStatusProcessed, OrderStatusError},
}

// IsTerminal возвращает true, если статус финальный.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusProcessed, OrderStatusError:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusCalculated, OrderStatusProcessed, OrderStatusError:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход s → next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String возвращает строковое представление OrderStatus.
func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus парсит строку в OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}
