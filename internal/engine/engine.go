package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// Значения по умолчанию.
const (
	// DefaultStepBudget — общий лимит шагов обхода на один запуск.
	DefaultStepBudget = 1000

	// DefaultVisitCap — лимит посещений одного узла за запуск.
	DefaultVisitCap = 1000

	// DefaultNodeTimeout — таймаут узла, если он не задан (практически без ограничения).
	DefaultNodeTimeout = 24 * time.Hour
)

// Submitter — очередь задач, исполняющая код узлов.
//
// Реализуется queue.Queue; в тестах подменяется.
type Submitter interface {
	// Submit ставит задачу в очередь и возвращает её ID.
	Submit(ctx context.Context, job *domain.Job) (string, error)

	// Await блокируется до появления результата, таймаута или отмены ctx.
	// Результат потребляется ровно один раз.
	Await(ctx context.Context, jobID string, timeout time.Duration) (*domain.Result, error)
}

// Config — конфигурация движка.
type Config struct {
	// Submitter — очередь задач для исполняемых узлов.
	// Может быть nil, если документы содержат только constant/goto/flow.
	Submitter Submitter

	// StepBudget — лимит шагов обхода (по умолчанию 1000).
	StepBudget int

	// VisitCap — лимит посещений одного узла (по умолчанию 1000).
	VisitCap int

	// NodeTimeout — таймаут узла без собственного timeout (по умолчанию 24h).
	NodeTimeout time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// Engine выполняет flow-документы.
//
// Engine не хранит состояние между запусками: каждый вызов Run
// загружает документ заново и создаёт собственный runState,
// поэтому один Engine можно использовать конкурентно.
type Engine struct {
	submitter   Submitter
	stepBudget  int
	visitCap    int
	nodeTimeout time.Duration
	logger      *slog.Logger
}

// New создаёт движок.
func New(cfg Config) *Engine {
	if cfg.StepBudget <= 0 {
		cfg.StepBudget = DefaultStepBudget
	}
	if cfg.VisitCap <= 0 {
		cfg.VisitCap = DefaultVisitCap
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = DefaultNodeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		submitter:   cfg.Submitter,
		stepBudget:  cfg.StepBudget,
		visitCap:    cfg.VisitCap,
		nodeTimeout: cfg.NodeTimeout,
		logger:      cfg.Logger,
	}
}

// Report — итог запуска.
//
// Возвращается и при ошибке: Logs и Executed содержат то,
// что успело выполниться.
type Report struct {
	// Output — выход последнего выполненного узла, не являющегося goto.
	Output any `json:"output"`

	// Entry — ID точки входа.
	Entry string `json:"entry"`

	// Logs — логи узлов и предупреждения движка, включая вложенные документы.
	Logs []string `json:"logs"`

	// Executed — ID выполненных узлов в порядке выполнения (с повторами).
	Executed []string `json:"executed"`

	// Steps — число шагов обхода.
	Steps int `json:"steps"`
}

// Run загружает документ по пути и выполняет его.
func (e *Engine) Run(ctx context.Context, path string, input any) (*Report, error) {
	doc, err := LoadFile(path)
	if err != nil {
		e.logger.Error("failed to load flow", "path", path, "error", err)
		telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
		return &Report{}, err
	}
	return e.RunDocument(ctx, doc, input)
}

// RunDocument выполняет уже загруженный документ.
func (e *Engine) RunDocument(ctx context.Context, doc *domain.FlowDocument, input any) (*Report, error) {
	report, err := e.run(ctx, doc, documentKey(doc), input, nil)

	status := domain.RunStatusSucceeded
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTerminatedByUser) || ctx.Err() != nil:
		status = domain.RunStatusCancelled
	default:
		status = domain.RunStatusFailed
	}
	telemetry.RunsFinished.WithLabelValues(string(status)).Inc()

	return report, err
}

// run выполняет документ с заданной цепочкой вызывающих документов.
func (e *Engine) run(ctx context.Context, doc *domain.FlowDocument, key string, input any, ancestry []string) (*Report, error) {
	logger := telemetry.WithFlowPath(e.logger, key)
	report := &Report{}

	g, err := BuildGraph(doc)
	if err != nil {
		return report, &DocumentError{Path: doc.Path, Err: err}
	}

	entry, err := ResolveEntry(g, logger)
	if err != nil {
		return report, err
	}
	report.Entry = entry

	s := newRunState(ctx, e, g, entry, input, logger)
	s.ancestry = append(append(make([]string, 0, len(ancestry)+1), ancestry...), key)

	logger.Debug("flow started", "entry", entry, "nodes", g.Size())

	err = s.stepTo(entry)

	report.Output = s.finalOutput()
	report.Logs = s.logs
	report.Executed = s.order
	report.Steps = s.steps

	if err != nil {
		logger.Warn("flow failed", "steps", s.steps, "error", err)
		return report, err
	}

	logger.Debug("flow finished", "steps", s.steps, "executed", len(s.order))
	return report, nil
}

// documentKey — ключ документа в цепочке вложенных вызовов.
func documentKey(doc *domain.FlowDocument) string {
	if doc.Path != "" {
		return doc.Path
	}
	return "<inline>"
}
