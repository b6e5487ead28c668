// Package pipeline связывает входящую очередь, процессор и публикацию.
//
// Coordinator обрабатывает одно сообщение и возвращает Outcome:
// вид результата и решение для брокера (ack, retry, dead letter).
// Ни один исход не ограничивается логом, каждый сводится к Decision.
//
// Service управляет жизненным циклом consumer'а входящей очереди.
package pipeline
