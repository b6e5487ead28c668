package outbound

import "errors"

// ErrPublishFailed — отправка не удалась при закрытом breaker.
// Временная ошибка: сообщение можно повторить.
var ErrPublishFailed = errors.New("publish failed")
