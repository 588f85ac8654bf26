package domain

// RunStatus — итог выполнения flow.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ CANCELLED (stop-маркер на одной из задач)
type RunStatus string

const (
	// RunStatusRunning — обход графа в процессе.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — обход завершён без ошибок.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — обход прерван ошибкой узла или документа.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — задача узла остановлена пользователем.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — состояние задачи в файловой очереди.
//
// Жизненный цикл:
//
//	QUEUED → CLAIMED → SUCCEEDED
//	                 ↘ FAILED
//	                 ↘ TERMINATED (stop-маркер)
//	                 ↘ TIMED_OUT
//	       ↘ DUPLICATE (result уже существует)
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusClaimed    JobStatus = "CLAIMED"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusTerminated JobStatus = "TERMINATED"
	JobStatusTimedOut   JobStatus = "TIMED_OUT"
	JobStatusDuplicate  JobStatus = "DUPLICATE"
)

// StatusOf определяет финальный статус задачи по её результату.
func StatusOf(r *Result) JobStatus {
	switch r.Error {
	case "":
		return JobStatusSucceeded
	case MsgTerminatedByUser:
		return JobStatusTerminated
	case MsgTerminatedTimeout:
		return JobStatusTimedOut
	default:
		return JobStatusFailed
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}
