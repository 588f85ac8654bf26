// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики очереди и движка
//
// Все бинарники используют единый формат логирования,
// worker экспортирует метрики на /metrics endpoint.
package telemetry
