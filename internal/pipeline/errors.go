package pipeline

import "errors"

// ErrMalformedMessage — тело сообщения не является корректным JSON заказа.
var ErrMalformedMessage = errors.New("malformed order message")
