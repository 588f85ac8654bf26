package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// dispatch выполняет узел в зависимости от типа.
func (s *runState) dispatch(node *domain.Node, input any) (any, error) {
	switch node.Kind {
	case domain.KindConstant:
		return node.Value, nil
	case domain.KindGoto:
		return s.evalGoto(node, input), nil
	case domain.KindFlow:
		return s.runNested(node, input)
	default:
		return s.runJob(node, input)
	}
}

// evalGoto проверяет правила по порядку и запоминает цель первого
// истинного. Ошибка вычисления делает правило ложным.
// Выход goto-узла равен его входу.
func (s *runState) evalGoto(node *domain.Node, input any) any {
	delete(s.jumps, node.ID)

	for _, cond := range node.Conditions {
		ok, err := EvalCondition(cond.Expr, input)
		if err != nil {
			evalErr := &EvaluationError{NodeID: node.ID, Expr: cond.Expr, Err: err}
			s.logger.Debug("condition evaluation failed", "node_id", node.ID, "error", evalErr)
			continue
		}
		if !ok {
			continue
		}

		s.jumps[node.ID] = cond.Goto
		if cond.ForwardInput {
			s.forwarded[cond.Goto] = input
		}
		s.logger.Debug("goto jump", "node_id", node.ID, "target", cond.Goto, "expr", cond.Expr)
		return input
	}

	s.logger.Debug("goto fell through", "node_id", node.ID)
	return input
}

// runNested выполняет вложенный документ узла flow.
//
// Ссылка берётся из CodeFilePath или Code. Code, начинающийся с "{",
// считается встроенным документом. Документ, уже находящийся в цепочке
// вызова, не выполняется: узел возвращает nil и предупреждение.
func (s *runState) runNested(node *domain.Node, input any) (any, error) {
	ref := node.CodeFilePath
	if ref == "" {
		ref = strings.TrimSpace(node.Code)
	}
	if ref == "" {
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind,
			Err: fmt.Errorf("%w: flow node has no document reference", ErrInvalidDocument)}
	}

	parentDir := s.graph.Doc.Dir
	current := s.ancestry[len(s.ancestry)-1]

	var (
		doc *domain.FlowDocument
		key string
		err error
	)
	if node.CodeFilePath == "" && strings.HasPrefix(ref, "{") {
		key = current + "#" + node.ID
		if s.onStack(key) {
			return s.circular(node, key)
		}
		doc, err = Parse([]byte(ref), parentDir)
	} else {
		key, err = ResolveFlowPath(ref, parentDir)
		if err == nil {
			if s.onStack(key) {
				return s.circular(node, key)
			}
			doc, err = LoadFile(key)
		}
	}
	if err != nil {
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	s.logger.Debug("entering nested flow", "node_id", node.ID, "flow", key)

	report, err := s.engine.run(s.ctx, doc, key, input, s.ancestry)
	for _, line := range report.Logs {
		s.logs = append(s.logs, "["+node.ID+"] "+line)
	}
	if err != nil {
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	return report.Output, nil
}

func (s *runState) onStack(key string) bool {
	return slices.Contains(s.ancestry, key)
}

// circular — реакция на рекурсивную ссылку: не ошибка, пустой результат.
func (s *runState) circular(node *domain.Node, key string) (any, error) {
	s.warn("circular flow reference, nested flow skipped", "node_id", node.ID, "flow", key)
	return nil, nil
}

// runJob отправляет узел в очередь задач и ждёт результат.
//
// Для dontWaitForOutput результат не ожидается: узел сразу
// возвращает свой вход.
func (s *runState) runJob(node *domain.Node, input any) (any, error) {
	sub := s.engine.submitter
	if sub == nil {
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: ErrNoSubmitter}
	}

	job := &domain.Job{
		Code:              node.Code,
		CodeFilePath:      node.CodeFilePath,
		Kind:              node.Kind,
		Input:             input,
		DontWaitForOutput: node.DontWaitForOutput,
		BasePath:          s.graph.Doc.Dir,
		TimeoutMs:         node.TimeoutMs,
		NodeID:            node.ID,
		CreatedAt:         time.Now().UTC(),
	}

	jobID, err := sub.Submit(s.ctx, job)
	if err != nil {
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: fmt.Errorf("submit job: %w", err)}
	}

	logger := telemetry.WithNodeID(telemetry.WithJobID(s.logger, jobID), node.ID)

	if node.DontWaitForOutput {
		logger.Debug("job submitted without waiting")
		s.logf("[%s] submitted job %s without waiting for output", node.ID, jobID)
		return input, nil
	}

	result, err := sub.Await(s.ctx, jobID, job.Timeout(s.engine.nodeTimeout))
	if err != nil {
		logger.Warn("job did not complete", "error", err)
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: err}
	}

	if result.Log != "" {
		for _, line := range strings.Split(strings.TrimRight(result.Log, "\n"), "\n") {
			s.logf("[%s] %s", node.ID, line)
		}
	}

	if result.Failed() {
		cause := domain.ErrorFromResult(result)
		if !errors.Is(cause, domain.ErrTerminatedByUser) && !errors.Is(cause, domain.ErrTimedOut) {
			cause = fmt.Errorf("%w: %s", ErrBackendFailed, result.Error)
		}
		logger.Warn("job failed", "error", result.Error)
		return nil, &NodeError{NodeID: node.ID, Kind: node.Kind, Err: cause}
	}

	logger.Debug("job completed", "execution_time_ms", result.ExecutionTime)
	return result.Output, nil
}
