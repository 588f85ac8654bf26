package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// RunFlow синхронно выполняет flow-документ и возвращает итог.
// POST /api/v1/runs
//
// Ошибки документа (не найден, невалиден) возвращаются как 404/422.
// Ошибки узлов не считаются ошибкой запроса: ответ 200 со статусом
// FAILED или CANCELLED и логами выполненной части.
func (h *Handler) RunFlow(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		NotImplemented(w, "flow runs are not enabled on this worker")
		return
	}

	var req RunFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Path == "" && len(req.Document) == 0 {
		BadRequest(w, "path or document is required")
		return
	}

	start := time.Now()

	var report *engine.Report
	var err error
	if len(req.Document) > 0 {
		var doc *domain.FlowDocument
		doc, err = engine.Parse(req.Document, "")
		if HandleError(w, r, err) {
			return
		}
		report, err = h.engine.RunDocument(r.Context(), doc, req.Input)
	} else {
		report, err = h.engine.Run(r.Context(), req.Path, req.Input)
	}

	// Ошибка документа верхнего уровня. Ошибка узла (в том числе
	// вложенного документа) — это итог запуска, а не ошибка запроса.
	var nodeErr *engine.NodeError
	var docErr *engine.DocumentError
	if !errors.As(err, &nodeErr) && errors.As(err, &docErr) {
		HandleError(w, r, err)
		return
	}

	status := runStatus(err)
	logger := telemetry.FromContext(r.Context())
	if err != nil {
		logger.Warn("flow run finished with error", "status", status, "node_id", nodeID(nodeErr), "error", err)
	} else {
		logger.Info("flow run finished", "status", status, "steps", report.Steps)
	}

	Success(w, RunFromReport(report, status, err, time.Since(start)))
}

// nodeID возвращает ID узла, на котором оборвался обход.
func nodeID(err *engine.NodeError) string {
	if err == nil {
		return ""
	}
	return err.NodeID
}

// runStatus определяет итог запуска по ошибке обхода.
func runStatus(err error) domain.RunStatus {
	switch {
	case err == nil:
		return domain.RunStatusSucceeded
	case errors.Is(err, domain.ErrTerminatedByUser), errors.Is(err, context.Canceled):
		return domain.RunStatusCancelled
	default:
		return domain.RunStatusFailed
	}
}
