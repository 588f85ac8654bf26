// Package engine содержит движок выполнения flow-документов.
//
// Включает:
//   - parser.go    — загрузка и валидация документа
//   - dag.go       — индекс графа: смежность, корни, топологический порядок
//   - entry.go     — выбор точки входа
//   - condition.go — условия goto (выражения HCL)
//   - scheduler.go — итеративный обход с учётом устаревания и переходов goto
//   - dispatch.go  — выполнение узла по типу: constant, goto, flow, задача очереди
//
// Обход не рекурсивен: ensureExecuted и stepTo работают на явных стеках,
// состояние запуска хранится в runState. Узлы с кодом исполняются через
// Submitter (queue.Queue), движок только ждёт результат.
package engine
