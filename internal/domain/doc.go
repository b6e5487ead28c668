// Package domain содержит доменную модель OrderFlow.
//
// Основные типы:
//   - Order        — агрегат заказа, владеет позициями и считает total
//   - OrderItem    — позиция заказа (slot внутри Order)
//   - OrderStatus  — жизненный цикл RECEIVED → CALCULATED → PROCESSED | ERROR
//   - OrderRequest — входящее сообщение и его валидация
//
// Уникальность ExternalID обеспечивает хранилище, а не этот пакет.
package domain
