package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// ListJobs возвращает задачи, выполняемые этим worker'ом.
// GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	procs := h.queue.Processes()

	ids := procs.Running()
	sort.Strings(ids)

	result := make([]JobResponse, len(ids))
	for i, id := range ids {
		result[i] = JobResponse{
			ID:     id,
			Status: domain.JobStatusClaimed.String(),
			PID:    procs.PID(id),
		}
	}

	List(w, result, len(result))
}

// SubmitJob ставит задачу в очередь.
// POST /api/v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	kind := domain.NodeKind(req.Type)
	if !kind.IsValid() || kind.IsControl() {
		BadRequest(w, fmt.Sprintf("unsupported job type %q, expected one of: %s",
			req.Type, strings.Join(h.queue.Registry().Kinds(), ", ")))
		return
	}
	if req.Code == "" && req.CodeFilePath == "" {
		BadRequest(w, "code or codeFilePath is required")
		return
	}

	id, err := h.queue.Submit(r.Context(), req.ToDomain())
	if HandleError(w, r, err) {
		return
	}

	telemetry.FromContext(r.Context()).Info("job submitted", "job_id", id, "kind", kind)
	Created(w, JobResponse{ID: id, Status: domain.JobStatusQueued.String()})
}

// StopJob запрашивает остановку задачи.
// POST /api/v1/jobs/{id}/stop
func (h *Handler) StopJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if HandleError(w, r, h.queue.StopJob(id)) {
		return
	}

	telemetry.FromContext(r.Context()).Info("job stop requested", "job_id", id)
	Accepted(w, JobResponse{ID: id, Status: "STOP_REQUESTED"})
}

// TakeResult забирает результат задачи. Результат выдаётся один раз.
// GET /api/v1/jobs/{id}/result
func (h *Handler) TakeResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.queue.TakeResult(r.PathValue("id"))
	if HandleError(w, r, err) {
		return
	}

	Success(w, ResultFromDomain(result))
}
