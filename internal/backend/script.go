package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/process"
)

// ScriptSpec — описание внешнего интерпретатора.
type ScriptSpec struct {
	// Kind — тип узла.
	Kind domain.NodeKind

	// Ext — расширение файла скрипта (с точкой).
	Ext string

	// Wrapper — text/template обёртки кода.
	Wrapper string

	// Interpreters — кандидаты в PATH, первый найденный используется.
	Interpreters []string

	// Args — аргументы перед путём к скрипту.
	Args []string
}

// DefaultScriptSpecs возвращает описания стандартных внешних backend'ов.
func DefaultScriptSpecs() []ScriptSpec {
	shell := ScriptSpec{
		Kind:         domain.KindShell,
		Ext:          ".sh",
		Wrapper:      shellWrapper,
		Interpreters: []string{"sh", "bash"},
	}
	if runtime.GOOS == "windows" {
		shell = ScriptSpec{
			Kind:         domain.KindShell,
			Ext:          ".cmd",
			Wrapper:      cmdWrapper,
			Interpreters: []string{"cmd"},
			Args:         []string{"/C"},
		}
	}

	return []ScriptSpec{
		{
			Kind:         domain.KindPython,
			Ext:          ".py",
			Wrapper:      pythonWrapper,
			Interpreters: []string{"python3", "python"},
		},
		{
			Kind:         domain.KindNode,
			Ext:          ".js",
			Wrapper:      nodeWrapper,
			Interpreters: []string{"node", "nodejs"},
		},
		shell,
		{
			Kind:         domain.KindPowerShell,
			Ext:          ".ps1",
			Wrapper:      powershellWrapper,
			Interpreters: []string{"pwsh", "powershell"},
			Args:         []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File"},
		},
	}
}

// ScriptBackend — backend, исполняющий код во внешнем процессе.
//
// Протокол:
//   - Prepare: код оборачивается в скрипт (ScriptSpec.Wrapper) с родным
//     расширением, вход пишется в input.json во временной директории
//   - Run: процесс запускается через process.Manager (реестр, kill дерева)
//   - Результат: output.json (side-channel), иначе stdout
//   - Ошибка: ненулевой код выхода или эвристика по выводу (DetectError)
type ScriptBackend struct {
	spec  ScriptSpec
	procs *process.Manager
}

// NewScriptBackend создаёт backend для внешнего интерпретатора.
func NewScriptBackend(spec ScriptSpec, procs *process.Manager) *ScriptBackend {
	return &ScriptBackend{spec: spec, procs: procs}
}

// Kind возвращает тип узла.
func (b *ScriptBackend) Kind() domain.NodeKind {
	return b.spec.Kind
}

// Prepare создаёт временную директорию со скриптом и входом.
func (b *ScriptBackend) Prepare(job *domain.Job) (*Request, error) {
	source, err := ResolveSource(job)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "flowrun-"+string(b.spec.Kind)+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrepare, err)
	}

	req := &Request{
		Job:        job,
		Source:     source,
		Dir:        dir,
		Script:     filepath.Join(dir, "main"+b.spec.Ext),
		InputFile:  filepath.Join(dir, "input.json"),
		OutputFile: filepath.Join(dir, "output.json"),
	}

	script, err := renderWrapper(string(b.spec.Kind), b.spec.Wrapper, source)
	if err != nil {
		req.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrPrepare, err)
	}

	if err := os.WriteFile(req.Script, []byte(script), 0o700); err != nil {
		req.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrPrepare, err)
	}

	if err := WriteInputFile(req.InputFile, job.Input); err != nil {
		req.Cleanup()
		return nil, fmt.Errorf("%w: %v", ErrPrepare, err)
	}

	return req, nil
}

// Run запускает интерпретатор и собирает результат.
func (b *ScriptBackend) Run(ctx context.Context, req *Request) (*RawResult, error) {
	interpreter, err := b.lookInterpreter()
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, b.spec.Args...), req.Script)
	cmd := exec.Command(interpreter, args...)
	cmd.Dir = req.Job.BasePath
	if cmd.Dir == "" {
		cmd.Dir = req.Dir
	}

	inputJSON, _ := json.Marshal(req.Job.Input)
	cmd.Env = append(os.Environ(),
		"FLOW_INPUT_FILE="+req.InputFile,
		"FLOW_OUTPUT_FILE="+req.OutputFile,
		"FLOW_INPUT="+string(inputJSON),
		"FLOW_JOB_ID="+req.Job.ID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code, err := b.procs.Run(ctx, req.Job.ID, cmd)
	if err != nil {
		return nil, err
	}

	res := &RawResult{
		Log: joinLog(stdout.String(), stderr.String()),
	}

	if code != 0 {
		res.Error = errorMessage(code, stderr.String())
		return res, nil
	}

	if line := DetectError(b.spec.Kind, res.Log); line != "" {
		res.Error = line
		return res, nil
	}

	output, ok, err := ReadOutputFile(req.OutputFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		output = DecodeOutput(stdout.Bytes())
	}
	res.Output = output

	return res, nil
}

// lookInterpreter ищет первый доступный интерпретатор.
func (b *ScriptBackend) lookInterpreter() (string, error) {
	for _, name := range b.spec.Interpreters {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrInterpreterNotFound, b.spec.Interpreters)
}
