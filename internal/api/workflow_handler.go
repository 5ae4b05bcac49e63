package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ValidateWorkflow проверяет документ без выполнения.
// POST /api/v1/workflows/validate
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadBody(w, err)
		return
	}

	wf, err := h.validate(&req.Workflow, h.engine.Effective(req.Options))
	if err != nil {
		ValidationFailed(w, err)
		return
	}

	Success(w, ValidateResponse{
		Valid:    true,
		Workflow: *wf.Document(),
		Warnings: wf.Warnings(),
	})
}

// CreateWorkflow валидирует и сохраняет документ под новым ID.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var doc domain.Workflow
	if err := decodeJSON(r, &doc, false); err != nil {
		BadBody(w, err)
		return
	}

	stored, warnings, err := h.createWorkflow(r, doc)
	if err != nil {
		if isValidation(err) {
			ValidationFailed(w, err)
			return
		}
		HandleRepoError(w, h.logger, err, "")
		return
	}

	resp := WorkflowFromDomain(*stored)
	resp.Warnings = warnings
	Created(w, resp)
}

// createWorkflow — общая часть v1 и /create-workflow.
func (h *Handler) createWorkflow(r *http.Request, doc domain.Workflow) (*domain.StoredWorkflow, []string, error) {
	wf, err := h.validate(&doc, h.engine.Effective(domain.ExecutionOptions{}))
	if err != nil {
		return nil, nil, err
	}

	doc.ID = uuid.NewString()
	stored := &domain.StoredWorkflow{
		ID:        doc.ID,
		Name:      doc.Name,
		Document:  doc,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.workflows.Create(r.Context(), stored); err != nil {
		return nil, nil, err
	}

	h.logger.Info("workflow created", "workflow_id", stored.ID, "nodes", wf.Size())
	return stored, wf.Warnings(), nil
}

// ListWorkflows возвращает сохранённые документы без тел.
// GET /api/v1/workflows?limit=...&offset=...
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	items, err := h.workflows.List(r.Context(), limit, offset)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowSummary, len(items))
	for i, item := range items {
		result[i] = SummaryFromDomain(item)
	}
	List(w, result, len(result))
}

// GetWorkflow возвращает документ по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	stored, err := h.workflows.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}
	Success(w, WorkflowFromDomain(*stored))
}

// DeleteWorkflow удаляет сохранённый документ.
// Завершённые runs сохраняются без ссылки на документ.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if HandleRepoError(w, h.logger, h.workflows.Delete(r.Context(), id), "workflow not found") {
		return
	}

	h.logger.Info("workflow deleted", "workflow_id", id)
	NoContent(w)
}

// ExecuteWorkflow синхронно выполняет документ из тела запроса.
// POST /api/v1/workflows/execute
func (h *Handler) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadBody(w, err)
		return
	}

	resp, err := h.execute(r.Context(), &req.Workflow, req.Options, req.Inputs)
	if err != nil {
		ValidationFailed(w, err)
		return
	}
	Success(w, resp)
}

// ExecuteWorkflowByID синхронно выполняет сохранённый документ.
// Inputs запроса мёржатся поверх initialData узла start.
// POST /api/v1/workflows/{id}/execute
func (h *Handler) ExecuteWorkflowByID(w http.ResponseWriter, r *http.Request) {
	stored, err := h.workflows.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	var req ExecuteByIDRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadBody(w, err)
		return
	}

	doc := stored.Document
	resp, err := h.execute(r.Context(), &doc, req.Options, req.Inputs)
	if err != nil {
		ValidationFailed(w, err)
		return
	}
	Success(w, resp)
}

// pageParams читает limit и offset; при ошибке отвечает 400.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultListLimit, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return 0, 0, false
		}
		limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "invalid offset")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
