// Package process управляет жизненным циклом внешних процессов задач.
//
// Manager хранит реестр задач по job ID и обеспечивает:
//   - запуск процесса в собственной группе (kill_unix.go / kill_windows.go)
//   - таймаут задачи (Track)
//   - watchdog stop-маркера inbox/<id>.stop (Watch)
//   - завершение всего дерева процессов при отмене (Run, Kill)
//
// Причина отмены передаётся через context.Cause: domain.ErrTerminatedByUser
// или domain.ErrTimedOut. По ней очередь решает, какой результат записать.
package process
