// Package outbound публикует рассчитанные заказы downstream.
//
// Отправка идёт через circuit breaker (sony/gobreaker). Пока breaker
// закрыт, ошибки отправки возвращаются как ErrPublishFailed и считаются
// для его размыкания. Разомкнутый breaker не отправляет сообщение,
// а возвращает деградированный результат с fallback-сообщением
// (status ERROR, без суммы и позиций).
package outbound
