// Package app собирает компоненты сервиса из конфигурации.
//
// Все зависимости создаются явно в конструкторах, без глобального
// состояния. OpenStore выбирает хранилище по store.driver,
// New собирает весь пайплайн order-ingestor.
package app
