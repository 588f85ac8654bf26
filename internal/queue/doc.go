// Package queue реализует файловую очередь задач.
//
// # Обзор
//
// Движок отправляет в очередь каждый узел с кодом (Submit) и ждёт
// результат (Await). Worker (Start/Stop) забирает задачи из inbox,
// выполняет их backend'ами и пишет результаты в outbox. Отправитель
// и worker могут работать в разных процессах с общим Root.
//
// # Протокол
//
//	inbox/<id>.json         — задача; пишется атомарно (temp + rename)
//	inbox/<id>.processing   — захват: rename, удаётся ровно одному worker'у
//	inbox/<id>.stop         — запрос остановки (пустой файл)
//	outbox/<id>.result.json — результат; создаётся эксклюзивно (temp + link)
//
// Наличие result-файла — единственный сигнал завершения. Первый
// записанный результат побеждает: таймаут, записанный Await, не
// перезаписывается поздним результатом worker'а. Потребитель забирает
// результат переименованием в приватное имя, читает и удаляет его.
//
// # Обработка задачи
//
//  1. Результат уже существует — дубликат, захват удаляется
//  2. Есть stop-маркер — "Process terminated by user" без запуска процесса
//  3. Backend по типу: Prepare → Run под process.Manager (таймаут,
//     наблюдение за stop-маркером, kill всего дерева) → Cleanup
//  4. Запись результата, удаление захвата и stop-маркера
//
// # Ожидание
//
// Цикл worker'а и Await просыпаются по событиям fsnotify; опрос
// с удваивающимся интервалом (PollInterval … MaxPollInterval)
// подстраховывает пропущенные события и платформы без fsnotify.
//
// # Восстановление
//
// При старте захваты старше StaleClaimAfter возвращаются в очередь.
// Sweep удаляет из outbox результаты старше ResultRetention.
package queue
