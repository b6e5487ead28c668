// Package monitor периодически проверяет глубину очередей.
//
// По расписанию cron (robfig/cron/v3) Monitor опрашивает очереди,
// выставляет gauge orderflow_queue_messages и пишет предупреждение,
// если в dead letter очереди есть сообщения.
package monitor
