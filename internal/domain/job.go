package domain

import "time"

// Сообщения об ошибках, которые пишутся в result-файл при принудительном
// завершении задачи. Тексты являются частью файлового протокола.
const (
	// MsgTerminatedByUser — задача остановлена stop-маркером.
	MsgTerminatedByUser = "Process terminated by user"

	// MsgTerminatedTimeout — задача убита по таймауту.
	MsgTerminatedTimeout = "Process terminated due to timeout"
)

// Job — единица работы для backend'а.
//
// Job создаётся движком для каждого узла, который нельзя выполнить
// напрямую (всё, кроме constant/goto/flow), и записывается в inbox
// как <id>.json. Worker атомарно забирает файл, исполняет код и
// пишет Result в outbox.
type Job struct {
	// ID — уникальный идентификатор (uuid), генерируется при каждой отправке.
	ID string `json:"id"`

	// Code — исходный код узла.
	Code string `json:"code,omitempty"`

	// CodeFilePath — путь к файлу с кодом (относительно BasePath).
	CodeFilePath string `json:"codeFilePath,omitempty"`

	// Kind — тип backend'а (data.type узла).
	Kind NodeKind `json:"type"`

	// Input — вход узла, произвольное JSON-значение.
	Input any `json:"input"`

	// DontWaitForOutput — движок не ждёт результат.
	DontWaitForOutput bool `json:"dontWaitForOutput,omitempty"`

	// BasePath — директория flow-документа.
	BasePath string `json:"basePath,omitempty"`

	// TimeoutMs — таймаут выполнения в миллисекундах (0 — по умолчанию очереди).
	TimeoutMs int64 `json:"timeout,omitempty"`

	// NodeID — ID узла, для логов.
	NodeID string `json:"nodeId,omitempty"`

	// CreatedAt — время постановки в очередь.
	CreatedAt time.Time `json:"createdAt"`
}

// Timeout возвращает таймаут задачи или fallback, если он не задан.
func (j *Job) Timeout(fallback time.Duration) time.Duration {
	if j.TimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(j.TimeoutMs) * time.Millisecond
}

// Result — результат выполнения задачи (outbox/<id>.result.json).
type Result struct {
	// ID — ID задачи.
	ID string `json:"id"`

	// Output — выход backend'а, произвольное JSON-значение.
	Output any `json:"output"`

	// Log — захваченный текстовый вывод (stdout/stderr/console).
	Log string `json:"log"`

	// Error — сообщение об ошибке; пустая строка означает успех.
	Error string `json:"error,omitempty"`

	// ExecutionTime — время выполнения в миллисекундах.
	ExecutionTime int64 `json:"executionTime"`

	// DontWaitForOutput — копия флага задачи.
	DontWaitForOutput bool `json:"dontWaitForOutput,omitempty"`
}

// Failed возвращает true, если задача завершилась ошибкой.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// NewErrorResult создаёт результат с ошибкой для задачи.
func NewErrorResult(job *Job, msg string) *Result {
	return &Result{
		ID:                job.ID,
		Error:             msg,
		DontWaitForOutput: job.DontWaitForOutput,
	}
}
