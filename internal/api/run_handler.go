package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/cancel"
	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/repo"
)

// CreateRun ставит сохранённый документ на асинхронное выполнение.
// Документ валидируется до создания run.
// POST /api/v1/workflows/{id}/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	stored, err := h.workflows.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	var req CreateRunRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadBody(w, err)
		return
	}

	opts := h.engine.Effective(req.Options)
	doc := stored.Document
	if _, err := h.validate(&doc, opts); err != nil {
		ValidationFailed(w, err)
		return
	}

	run := domain.NewRun(stored.ID, req.Inputs, opts)
	if err := h.runs.Create(r.Context(), run); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRunPending(r.Context(), run.ID, run.WorkflowID); err != nil {
			// run подберёт polling воркера
			h.logger.Warn("failed to publish run.pending", "run_id", run.ID, "error", err)
		}
	}

	Accepted(w, RunFromDomain(*run))
}

// ListRuns возвращает runs с фильтрацией.
// GET /api/v1/runs?workflow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	filter := repo.RunFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Limit:      limit,
		Offset:     offset,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = domain.RunStatus(s)
		if !filter.Status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}
	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	Success(w, RunFromDomain(*run))
}

// CancelRun отменяет run.
//
// Pending run сразу становится aborted. Для running run запрос доставляется
// исполнителю, и run завершится aborted на ближайшей границе шага.
// Синхронные runs этого процесса отменяются по runId из ExecutionResponse.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	runID := id.String()

	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) && h.cancels.Cancel(runID) {
		Accepted(w, CancelResponse{RunID: runID, Status: "cancelling"})
		return
	}
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	switch run.Status {
	case domain.RunStatusPending:
		run.MarkCancelled()
		err := h.runs.CancelPending(r.Context(), run)
		if err == nil {
			Success(w, RunFromDomain(*run))
			return
		}
		if !errors.Is(err, repo.ErrInvalidState) {
			InternalError(w, h.logger, err)
			return
		}

		// воркер забрал run между чтением и отменой
		run, err = h.runs.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, err, "run not found") {
			return
		}
		if run.Status == domain.RunStatusRunning {
			h.cancelRunning(w, r, runID)
			return
		}
		InvalidState(w, "run is already finished")

	case domain.RunStatusRunning:
		h.cancelRunning(w, r, runID)

	default:
		InvalidState(w, "run is already finished")
	}
}

// cancelRunning доставляет отмену процессу, исполняющему run.
func (h *Handler) cancelRunning(w http.ResponseWriter, r *http.Request, runID string) {
	err := h.canceller.CancelRun(r.Context(), runID)
	if errors.Is(err, cancel.ErrRunNotActive) {
		InvalidState(w, "run is not executing in a reachable process")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	Accepted(w, CancelResponse{RunID: runID, Status: "cancelling"})
}
