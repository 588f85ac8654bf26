// Package scheduler запускает flow-документы по расписанию.
//
// Scheduler хранит расписания в памяти, периодически проверяет
// next_due_at и выполняет due flow через Runner (обычно *engine.Engine).
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Add, Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Runner: eng,
//	    Logger: logger,
//	})
//
//	err := sched.Add(&domain.Schedule{
//	    FlowPath: "flows/report.json",
//	    CronExpr: "0 9 * * *",
//	    Enabled:  true,
//	})
//
//	// Блокирует до отмены ctx
//	_ = sched.Run(ctx)
//
// Запуски одного Scheduler последовательны: следующий due flow ждёт,
// пока завершится предыдущий.
package scheduler
