package mq

import "errors"

var (
	// ErrNoChannel — канал недоступен (соединение разорвано или закрыто).
	ErrNoChannel = errors.New("no channel available")

	// ErrNotConfirmed — брокер отклонил публикацию (basic.nack).
	ErrNotConfirmed = errors.New("publish not confirmed by broker")

	// ErrDeliveriesClosed — брокер закрыл канал доставки.
	ErrDeliveriesClosed = errors.New("deliveries channel closed")
)
