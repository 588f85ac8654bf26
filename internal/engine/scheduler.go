package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// runState — состояние одного обхода документа.
//
// Создаётся в начале запуска и отбрасывается в конце; вложенный
// документ получает собственный runState. Обход однопоточный,
// поэтому блокировки не нужны.
type runState struct {
	ctx    context.Context
	engine *Engine
	graph  *Graph
	logger *slog.Logger

	input    any      // внешний вход документа
	entry    string   // точка входа
	ancestry []string // документы в цепочке вызова, включая текущий

	results    map[string]any    // выходы узлов
	executed   map[string]bool   // выполненные узлы
	executing  map[string]bool   // узлы, чьи предшественники сейчас выполняются
	executedAt map[string]int    // тик последнего выполнения
	jumps      map[string]string // решение goto-узла: ID цели
	forwarded  map[string]any    // вход, переданный goto с forwardInput
	visits     map[string]int    // посещения узлов в stepTo

	tick     int
	steps    int
	budget   int
	visitCap int

	last  string // последний выполненный узел, не являющийся goto
	order []string
	logs  []string
}

func newRunState(ctx context.Context, e *Engine, g *Graph, entry string, input any, logger *slog.Logger) *runState {
	return &runState{
		ctx:        ctx,
		engine:     e,
		graph:      g,
		logger:     logger,
		input:      input,
		entry:      entry,
		results:    make(map[string]any),
		executed:   make(map[string]bool),
		executing:  make(map[string]bool),
		executedAt: make(map[string]int),
		jumps:      make(map[string]string),
		forwarded:  make(map[string]any),
		visits:     make(map[string]int),
		budget:     e.stepBudget,
		visitCap:   e.visitCap,
	}
}

// frame — элемент стека ensureExecuted.
type frame struct {
	id       string
	force    bool
	expanded bool // предшественники уже поставлены в стек
}

// ensureExecuted выполняет узел после всех его структурных предшественников.
//
// Узел пропускается, если он уже выполняется или выполнен и force == false.
// Предшественники никогда не перевыполняются принудительно.
func (s *runState) ensureExecuted(id string, force bool) error {
	stack := []frame{{id: id, force: force}}

	for len(stack) > 0 {
		top := len(stack) - 1
		f := stack[top]

		if !f.expanded {
			if s.executing[f.id] || (s.executed[f.id] && !f.force) {
				stack = stack[:top]
				continue
			}

			s.executing[f.id] = true
			stack[top].expanded = true

			preds := s.graph.Predecessors(f.id)
			for i := len(preds) - 1; i >= 0; i-- {
				p := preds[i]
				if s.executing[p] || s.executed[p] {
					continue
				}
				stack = append(stack, frame{id: p})
			}
			continue
		}

		stack = stack[:top]
		err := s.execute(f.id)
		delete(s.executing, f.id)
		if err != nil {
			for _, rest := range stack {
				if rest.expanded {
					delete(s.executing, rest.id)
				}
			}
			return err
		}
	}

	return nil
}

// execute вычисляет вход узла, выполняет его и записывает результат.
func (s *runState) execute(id string) error {
	node := s.graph.Node(id)
	input := s.inputFor(id)

	s.logger.Debug("executing node", "node_id", id, "kind", node.Kind)

	output, err := s.dispatch(node, input)
	if err != nil {
		return err
	}

	s.results[id] = output
	s.executed[id] = true
	s.tick++
	s.executedAt[id] = s.tick
	s.order = append(s.order, id)
	if node.Kind != domain.KindGoto {
		s.last = id
	}

	telemetry.NodesExecuted.WithLabelValues(string(node.Kind)).Inc()
	return nil
}

// inputFor вычисляет вход узла.
//
// Порядок: вход от goto с forwardInput (одноразовый), внешний вход
// для точки входа, выход единственного предшественника, список
// выходов нескольких предшественников, внешний вход для изолированного узла.
func (s *runState) inputFor(id string) any {
	if v, ok := s.forwarded[id]; ok {
		delete(s.forwarded, id)
		return v
	}
	if id == s.entry {
		return s.input
	}

	preds := s.graph.Predecessors(id)
	switch len(preds) {
	case 0:
		return s.input
	case 1:
		return s.results[preds[0]]
	default:
		outputs := make([]any, 0, len(preds))
		for _, p := range preds {
			outputs = append(outputs, s.results[p])
		}
		return outputs
	}
}

// needsRefresh сообщает, выполнялся ли какой-то предшественник
// позже самого узла.
func (s *runState) needsRefresh(id string) bool {
	own := s.executedAt[id]
	for _, p := range s.graph.Predecessors(id) {
		if s.executedAt[p] > own {
			return true
		}
	}
	return false
}

// stepTo обходит граф от узла start в глубину по структурным рёбрам.
//
// Goto-узел с принятым решением не передаёт управление своим
// наследникам: цель принудительно перевыполняется, и обход
// продолжается с неё. Обход останавливается при исчерпании
// общего бюджета шагов; узел, превысивший лимит посещений, пропускается.
func (s *runState) stepTo(start string) error {
	stack := []string{start}

	for len(stack) > 0 {
		if err := s.ctx.Err(); err != nil {
			return context.Cause(s.ctx)
		}

		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.steps >= s.budget {
			s.warn("step budget exhausted, traversal stopped", "node_id", id, "budget", s.budget)
			return nil
		}

		s.visits[id]++
		if s.visits[id] > s.visitCap {
			s.warn("node visit cap exceeded, node skipped", "node_id", id, "cap", s.visitCap)
			continue
		}
		s.steps++

		if err := s.ensureExecuted(id, s.needsRefresh(id)); err != nil {
			return err
		}

		if s.graph.Node(id).Kind == domain.KindGoto {
			if target, ok := s.jumps[id]; ok {
				if err := s.ensureExecuted(target, true); err != nil {
					return err
				}
				stack = append(stack, target)
				continue
			}
		}

		succ := s.graph.Successors(id)
		for i := len(succ) - 1; i >= 0; i-- {
			stack = append(stack, succ[i])
		}
	}

	return nil
}

// finalOutput возвращает выход последнего выполненного узла, не являющегося goto.
func (s *runState) finalOutput() any {
	if s.last == "" {
		return nil
	}
	return s.results[s.last]
}

// warn пишет предупреждение в лог и в отчёт.
func (s *runState) warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
	s.logs = append(s.logs, "warning: "+msg+formatArgs(args))
}

// logf добавляет строку в отчёт.
func (s *runState) logf(format string, args ...any) {
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
}

// formatArgs форматирует пары ключ-значение slog для строки отчёта.
func formatArgs(args []any) string {
	var out string
	for i := 0; i+1 < len(args); i += 2 {
		out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return out
}
