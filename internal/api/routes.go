package api

import (
	"fmt"
	"net/http"
	"time"
)

// RegisterRoutes регистрирует маршруты API на mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		MaxBody(h.maxBody),
	)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	mux.HandleFunc("GET /healthz", h.Healthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Workflows
	handle("POST /api/v1/workflows/validate", h.ValidateWorkflow)
	handle("POST /api/v1/workflows/execute", h.ExecuteWorkflow)
	handle("GET /api/v1/workflows", h.ListWorkflows)
	handle("POST /api/v1/workflows", h.CreateWorkflow)
	handle("GET /api/v1/workflows/{id}", h.GetWorkflow)
	handle("DELETE /api/v1/workflows/{id}", h.DeleteWorkflow)
	handle("POST /api/v1/workflows/{id}/execute", h.ExecuteWorkflowByID)
	handle("POST /api/v1/workflows/{id}/runs", h.CreateRun)

	// Runs
	handle("GET /api/v1/runs", h.ListRuns)
	handle("GET /api/v1/runs/{id}", h.GetRun)
	handle("POST /api/v1/runs/{id}/cancel", h.CancelRun)

	// Маршруты браузерного редактора
	handle("GET /health", h.LegacyHealth)
	handle("POST /execute-workflow", h.LegacyExecute)
	handle("POST /execute-workflow-by-id", h.LegacyExecuteByID)
	handle("POST /create-workflow", h.LegacyCreate)
}

// Router возвращает mux со всеми маршрутами под CORS.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return CORS()(mux)
}

// Healthz — проверка живости процесса.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %s", time.Since(h.started).Round(time.Second))
}
