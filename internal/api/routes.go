package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestLogger(h.logger),
		Recovery(),
	)

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.SubmitJob)))
	mux.Handle("POST /api/v1/jobs/{id}/stop", chain(http.HandlerFunc(h.StopJob)))
	mux.Handle("GET /api/v1/jobs/{id}/result", chain(http.HandlerFunc(h.TakeResult)))

	// Runs
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.RunFlow)))
}
