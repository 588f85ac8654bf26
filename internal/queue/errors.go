package queue

import "errors"

// Ошибки очереди.
var (
	// ErrNoRoot — не задана рабочая директория.
	ErrNoRoot = errors.New("queue root is required")

	// ErrAlreadyStarted — worker уже запущен.
	ErrAlreadyStarted = errors.New("queue worker already started")

	// ErrResultExists — result-файл задачи уже существует.
	// Первый записанный результат побеждает, последующие отбрасываются.
	ErrResultExists = errors.New("result already exists")

	// ErrInvalidJob — job-файл не удалось прочитать или разобрать.
	ErrInvalidJob = errors.New("invalid job file")

	// ErrNoResult — результата задачи пока нет.
	ErrNoResult = errors.New("result not ready")

	// ErrInvalidJobID — ID задачи содержит недопустимые символы.
	ErrInvalidJobID = errors.New("invalid job id")
)
