package api

import (
	"encoding/json"
	"time"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
)

// Job DTOs

// SubmitJobRequest — запрос на постановку задачи.
type SubmitJobRequest struct {
	ID                string `json:"id,omitempty"`
	Type              string `json:"type"`
	Code              string `json:"code,omitempty"`
	CodeFilePath      string `json:"codeFilePath,omitempty"`
	BasePath          string `json:"basePath,omitempty"`
	Input             any    `json:"input"`
	TimeoutMs         int64  `json:"timeout,omitempty"`
	DontWaitForOutput bool   `json:"dontWaitForOutput,omitempty"`
}

// ToDomain конвертирует запрос в domain.Job.
func (r SubmitJobRequest) ToDomain() *domain.Job {
	return &domain.Job{
		ID:                r.ID,
		Kind:              domain.NodeKind(r.Type),
		Code:              r.Code,
		CodeFilePath:      r.CodeFilePath,
		BasePath:          r.BasePath,
		Input:             r.Input,
		TimeoutMs:         r.TimeoutMs,
		DontWaitForOutput: r.DontWaitForOutput,
	}
}

// JobResponse — ответ с задачей.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
}

// ResultResponse — ответ с результатом задачи.
type ResultResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Output        any    `json:"output"`
	Log           string `json:"log"`
	Error         string `json:"error,omitempty"`
	ExecutionTime int64  `json:"executionTime"`
}

// ResultFromDomain конвертирует domain.Result в ResultResponse.
func ResultFromDomain(r *domain.Result) ResultResponse {
	return ResultResponse{
		ID:            r.ID,
		Status:        domain.StatusOf(r).String(),
		Output:        r.Output,
		Log:           r.Log,
		Error:         r.Error,
		ExecutionTime: r.ExecutionTime,
	}
}

// Run DTOs

// RunFlowRequest — запрос на выполнение flow.
// Задаётся либо path (файл на стороне worker'а), либо document.
type RunFlowRequest struct {
	Path     string          `json:"path,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
	Input    any             `json:"input"`
}

// RunResponse — итог выполнения flow.
type RunResponse struct {
	Status   domain.RunStatus `json:"status"`
	Output   any              `json:"output"`
	Entry    string           `json:"entry"`
	Logs     []string         `json:"logs"`
	Executed []string         `json:"executed"`
	Steps    int              `json:"steps"`
	Error    string           `json:"error,omitempty"`
	Duration string           `json:"duration"`
}

// RunFromReport конвертирует engine.Report в RunResponse.
func RunFromReport(report *engine.Report, status domain.RunStatus, err error, elapsed time.Duration) RunResponse {
	resp := RunResponse{
		Status:   status,
		Output:   report.Output,
		Entry:    report.Entry,
		Logs:     report.Logs,
		Executed: report.Executed,
		Steps:    report.Steps,
		Duration: elapsed.String(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
