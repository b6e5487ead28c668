package processor

import "errors"

// Ошибки процессора.
var (
	// ErrInvalidRequest — запрос не прошёл валидацию. Хранилище не трогали.
	ErrInvalidRequest = errors.New("invalid order request")

	// ErrStoreUnavailable — временная ошибка хранилища (сеть, таймаут).
	ErrStoreUnavailable = errors.New("order store unavailable")

	// ErrRaceInconsistency — хранилище сообщило о конфликте уникальности,
	// но конкурирующий заказ не найден повторным поиском.
	ErrRaceInconsistency = errors.New("unrecoverable race: conflicting order not found")
)
