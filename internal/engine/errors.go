package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/flowrun/internal/domain"
)

// Ошибки документа. Все ошибки загрузки и валидации оборачиваются
// в *DocumentError и фатальны для запуска.
var (
	// ErrInvalidDocument — документ не прошёл разбор или валидацию.
	ErrInvalidDocument = errors.New("invalid flow document")

	// ErrDocumentNotFound — файл документа не найден.
	ErrDocumentNotFound = errors.New("flow document not found")

	// ErrNoEntryNode — не удалось определить точку входа.
	ErrNoEntryNode = errors.New("no entry node")
)

// Ошибки валидации. Оборачиваются в *ValidationError.
var (
	// ErrEmptyNodes — документ не содержит узлов.
	ErrEmptyNodes = errors.New("document has no nodes")

	// ErrEmptyNodeID — узел без ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeKind — неизвестный тип узла.
	ErrUnknownNodeKind = errors.New("unknown node kind")

	// ErrMissingNode — ребро или условие ссылается на несуществующий узел.
	ErrMissingNode = errors.New("reference to unknown node")

	// ErrSelfLoop — ребро из узла в него же.
	ErrSelfLoop = errors.New("edge points to its own source")

	// ErrCyclicEdges — статические рёбра образуют цикл.
	ErrCyclicEdges = errors.New("cyclic edges detected")

	// ErrBadCondition — некорректное правило goto.
	ErrBadCondition = errors.New("invalid goto condition")
)

// Ошибки выполнения узлов.
var (
	// ErrBackendFailed — backend сообщил об ошибке выполнения кода.
	ErrBackendFailed = errors.New("backend failed")

	// ErrNoSubmitter — узлу нужен backend, а очередь задач не настроена.
	ErrNoSubmitter = errors.New("job submitter is not configured")

	// ErrCodeFile — не удалось прочитать codeFilePath узла.
	ErrCodeFile = errors.New("cannot read code file")
)

// DocumentError — фатальная ошибка документа.
type DocumentError struct {
	Path string // путь к документу, пустой для встроенных
	Err  error
}

// Error реализует интерфейс error.
func (e *DocumentError) Error() string {
	if e.Path != "" {
		return "document " + e.Path + ": " + e.Err.Error()
	}
	return "document: " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку и ErrInvalidDocument.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrInvalidDocument}
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// EvaluationError — ошибка вычисления условия goto.
// Не прерывает выполнение: правило считается ложным.
type EvaluationError struct {
	NodeID string
	Expr   string
	Err    error
}

// Error реализует интерфейс error.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("node %s: condition %q: %v", e.NodeID, e.Expr, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NodeError — ошибка выполнения узла. Прерывает обход.
//
// Err — ErrBackendFailed, domain.ErrTimedOut, domain.ErrTerminatedByUser
// или ошибка очереди / вложенного документа.
type NodeError struct {
	NodeID string
	Kind   domain.NodeKind
	Err    error
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *NodeError) Unwrap() error {
	return e.Err
}
