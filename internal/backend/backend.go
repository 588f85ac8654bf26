package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/process"
)

// Backend — исполнитель кода для одного типа узла.
//
// Реализации: ScriptBackend (python, node, shell, powershell — внешний процесс)
// и JavaScriptBackend (встроенный интерпретатор, без процесса).
//
// Prepare материализует код и вход во временные файлы, Run исполняет.
// ctx в Run — контекст задачи из process.Manager.Track: его отмена
// с причиной domain.ErrTerminatedByUser / domain.ErrTimedOut прерывает выполнение.
type Backend interface {
	Kind() domain.NodeKind
	Prepare(job *domain.Job) (*Request, error)
	Run(ctx context.Context, req *Request) (*RawResult, error)
}

// Request — подготовленная к запуску задача.
type Request struct {
	// Job — исходная задача.
	Job *domain.Job

	// Source — разрешённый исходный код (code или содержимое codeFilePath).
	Source string

	// Dir — временная директория задачи; удаляется в Cleanup.
	Dir string

	// Script — путь к сгенерированному скрипту-обёртке.
	Script string

	// InputFile — JSON со входом задачи.
	InputFile string

	// OutputFile — side-channel для структурированного результата.
	OutputFile string
}

// Cleanup удаляет временные файлы задачи. Безопасно вызывать повторно.
func (r *Request) Cleanup() {
	if r == nil || r.Dir == "" {
		return
	}
	_ = os.RemoveAll(r.Dir)
	r.Dir = ""
}

// RawResult — результат backend'а до записи в outbox.
type RawResult struct {
	// Output — выход кода, JSON-совместимое значение.
	Output any

	// Log — захваченный stdout/stderr или console.
	Log string

	// Error — логическая ошибка выполнения (ненулевой код, исключение, эвристика).
	// Инфраструктурные ошибки возвращаются через error в Run().
	Error string
}

// Registry — реестр backend'ов по типу узла.
type Registry struct {
	mu       sync.RWMutex
	backends map[domain.NodeKind]Backend
}

// NewRegistry создаёт реестр с backend'ами по умолчанию.
//
// Регистрирует: javascript (встроенный), python, node, shell, powershell.
// constant, goto и flow обрабатываются движком, сюда не попадают.
func NewRegistry(procs *process.Manager) *Registry {
	r := &Registry{backends: make(map[domain.NodeKind]Backend)}
	r.Register(NewJavaScriptBackend())
	for _, spec := range DefaultScriptSpecs() {
		r.Register(NewScriptBackend(spec, procs))
	}
	return r
}

// Register добавляет backend. Существующий backend того же типа перезаписывается.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Kind()] = b
}

// Get возвращает backend для типа узла.
func (r *Registry) Get(kind domain.NodeKind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return b, nil
}

// Kinds возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}

// ResolveSource возвращает код задачи: содержимое codeFilePath
// (относительно BasePath), если путь задан, иначе inline code.
func ResolveSource(job *domain.Job) (string, error) {
	if job.CodeFilePath == "" {
		return job.Code, nil
	}

	path := job.CodeFilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(job.BasePath, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeFile, err)
	}
	return string(data), nil
}
