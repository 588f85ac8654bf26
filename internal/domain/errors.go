package domain

import "errors"

// Причины принудительного завершения задачи.
// Используются как cause контекста задачи и как ошибки Await.
var (
	// ErrTerminatedByUser — задача остановлена stop-маркером.
	ErrTerminatedByUser = errors.New(MsgTerminatedByUser)

	// ErrTimedOut — задача превысила таймаут.
	ErrTimedOut = errors.New(MsgTerminatedTimeout)
)

// ErrorFromResult переводит сообщение result-файла в ошибку.
// Для служебных сообщений возвращаются соответствующие sentinel-ошибки,
// чтобы вызывающий код мог различать отмену, таймаут и ошибку backend'а.
func ErrorFromResult(r *Result) error {
	switch r.Error {
	case "":
		return nil
	case MsgTerminatedByUser:
		return ErrTerminatedByUser
	case MsgTerminatedTimeout:
		return ErrTimedOut
	default:
		return errors.New(r.Error)
	}
}
