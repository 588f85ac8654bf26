package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/shaiso/flowrun/internal/domain"
)

// errHalt — паника, которой прерывается интерпретатор при отмене задачи.
var errHalt = errors.New("javascript halted")

// JavaScriptBackend — backend для узлов javascript.
//
// Код исполняется встроенным интерпретатором otto, без внешнего процесса.
// Код оборачивается в функцию: (function(input) { <code> })(input),
// поэтому return возвращает результат узла. Доступны привязки
// input и console (log/info/warn/error/debug пишутся в лог результата).
// У интерпретатора нет доступа к файловой системе и сети.
type JavaScriptBackend struct{}

// NewJavaScriptBackend создаёт встроенный JS backend.
func NewJavaScriptBackend() *JavaScriptBackend {
	return &JavaScriptBackend{}
}

// Kind возвращает тип узла.
func (b *JavaScriptBackend) Kind() domain.NodeKind {
	return domain.KindJavaScript
}

// Prepare только разрешает исходный код: временные файлы не нужны.
func (b *JavaScriptBackend) Prepare(job *domain.Job) (*Request, error) {
	source, err := ResolveSource(job)
	if err != nil {
		return nil, err
	}
	return &Request{Job: job, Source: source}, nil
}

// Run исполняет код. Отмена ctx прерывает интерпретатор через vm.Interrupt.
func (b *JavaScriptBackend) Run(ctx context.Context, req *Request) (res *RawResult, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	console := &consoleLog{}
	if err := bindConsole(vm, console); err != nil {
		return nil, err
	}
	// Вход передаётся через JSON, чтобы код работал с настоящими
	// JS-объектами и массивами, а не с обёртками над Go-значениями.
	inputJSON, err := json.Marshal(req.Job.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	if err := vm.Set("__flowInput", string(inputJSON)); err != nil {
		return nil, fmt.Errorf("bind input: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errHalt) }
		case <-done:
		}
	}()

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errHalt {
				res, err = nil, context.Cause(ctx)
				return
			}
			panic(caught)
		}
	}()

	value, runErr := vm.Run("(function(input) {\n" + req.Source + "\n})(JSON.parse(__flowInput))")
	res = &RawResult{Log: console.String()}
	if runErr != nil {
		res.Error = jsErrorMessage(runErr)
		return res, nil
	}

	exported, exportErr := value.Export()
	if exportErr != nil {
		res.Error = fmt.Sprintf("export result: %v", exportErr)
		return res, nil
	}
	res.Output = Normalize(exported)

	return res, nil
}

// consoleLog собирает вывод console.* построчно.
type consoleLog struct {
	mu    sync.Mutex
	lines []string
}

func (c *consoleLog) add(level string, call otto.FunctionCall) {
	parts := make([]string, 0, len(call.ArgumentList))
	for _, arg := range call.ArgumentList {
		parts = append(parts, arg.String())
	}
	line := strings.Join(parts, " ")
	if level != "" {
		line = "[" + level + "] " + line
	}

	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *consoleLog) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

// bindConsole создаёт объект console в интерпретаторе.
func bindConsole(vm *otto.Otto, console *consoleLog) error {
	obj, err := vm.Object(`({})`)
	if err != nil {
		return fmt.Errorf("create console: %w", err)
	}

	levels := map[string]string{
		"log":   "",
		"info":  "",
		"debug": "debug",
		"warn":  "warn",
		"error": "error",
	}
	for method, level := range levels {
		level := level
		if err := obj.Set(method, func(call otto.FunctionCall) otto.Value {
			console.add(level, call)
			return otto.UndefinedValue()
		}); err != nil {
			return fmt.Errorf("bind console.%s: %w", method, err)
		}
	}

	return vm.Set("console", obj)
}

// jsErrorMessage возвращает сообщение исключения со стеком, если он есть.
func jsErrorMessage(err error) string {
	var jsErr *otto.Error
	if errors.As(err, &jsErr) {
		return jsErr.String()
	}
	return err.Error()
}
