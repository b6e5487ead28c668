// Package cache — кэш поиска заказов в Redis.
//
// CachedStore стоит перед хранилищем и отвечает на FindByExternalID
// из Redis, если заказ уже видели. Кэшируются только найденные или
// созданные заказы: отсутствие заказа не кэшируется, иначе повторная
// доставка после вставки прошла бы мимо.
//
// Ошибки Redis не являются ошибками поиска: при недоступном кэше
// запрос уходит в хранилище.
package cache
