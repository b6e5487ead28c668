package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrInvalidTransition — переход статуса нарушает жизненный цикл.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoItems — у заказа нет позиций, total посчитать нельзя.
	ErrNoItems = errors.New("order has no items")

	// ErrItemAttached — позиция уже принадлежит другому заказу.
	ErrItemAttached = errors.New("item already attached to another order")

	// ErrNegativeTotal — сумма заказа получилась отрицательной.
	ErrNegativeTotal = errors.New("order total is negative")

	// ErrUnknownStatus — строка не соответствует ни одному статусу.
	ErrUnknownStatus = errors.New("unknown order status")
)
