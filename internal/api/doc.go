// Package api содержит HTTP API worker'а.
//
// Структура:
//   - handler.go     — Handler с DI (queue, engine, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - job_handler.go — обработчики для /jobs
//   - run_handler.go — обработчики для /runs
//
// API позволяет ставить и останавливать задачи очереди, забирать
// их результаты и синхронно выполнять flow-документы.
package api
