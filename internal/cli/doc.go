// Package cli реализует инструмент командной строки flowrun.
//
// # Обзор
//
// CLI работает напрямую с рабочей директорией очереди (--root):
// запускает flow-документы, ставит и останавливает задачи,
// поднимает worker и планировщик. Процессы с общим --root
// взаимодействуют только через файлы inbox/ и outbox/.
//
// # Ключевые компоненты
//
// ## Client
//
// Открывает queue.Queue в рабочей директории и собирает поверх неё
// engine.Engine. `run` по умолчанию запускает worker в том же процессе
// (errgroup: обход flow + остановка worker'а по его завершении).
//
//	client := cli.NewClient(cli.ClientConfig{Root: ".flowrun"})
//	report, err := client.RunFlow(ctx, "flow.json", nil, true)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения и логи узлов — в stderr.
// Это позволяет использовать pipe: flowrun run flow.json --json | jq .output
//
// ## Commands
//
//   - run FLOW.json       — выполнить flow
//   - validate FLOW.json  — проверить документ, показать точку входа
//   - worker              — обрабатывать очередь до прерывания
//   - submit              — поставить задачу и дождаться результата
//   - stop JOB_ID         — запросить остановку задачи
//   - schedule FLOW.json  — запускать flow по расписанию
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
