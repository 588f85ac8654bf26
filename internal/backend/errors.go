package backend

import "errors"

// Ошибки backend'ов.
var (
	// ErrUnknownKind — нет backend'а для данного типа узла.
	ErrUnknownKind = errors.New("unknown backend kind")

	// ErrCodeFile — не удалось прочитать codeFilePath.
	ErrCodeFile = errors.New("read code file")

	// ErrInterpreterNotFound — интерпретатор не найден в PATH.
	ErrInterpreterNotFound = errors.New("interpreter not found")

	// ErrPrepare — не удалось материализовать временные файлы.
	ErrPrepare = errors.New("prepare job files")
)
