// Package processor реализует идемпотентную обработку заказов.
//
// # Алгоритм
//
// Один заказ на ExternalID, сколько бы раз ни пришло сообщение
// и сколько бы экземпляров ни обрабатывали его параллельно:
//
//  1. Валидация запроса. Ошибка → ErrInvalidRequest, хранилище не трогаем.
//  2. Поиск по ExternalID. Найден → возвращаем как есть (PathDuplicate).
//  3. Сборка заказа (RECEIVED), CalculateTotal (CALCULATED).
//  4. Атомарный insert. Успех → PathCreated.
//  5. Конфликт уникальности → повторный поиск. Найден → PathRaceRecovered,
//     не найден → ErrRaceInconsistency.
//
// Поиск на шаге 2 только сужает частый случай (повторные доставки),
// гонку он не предотвращает. Победителя определяет UNIQUE constraint
// хранилища, блокировок на уровне приложения нет.
//
// # Ошибки
//
// Любая другая ошибка хранилища, включая таймаут, оборачивается
// в ErrStoreUnavailable и считается временной.
package processor
