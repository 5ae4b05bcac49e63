package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/repo"
)

// LegacyHealth — проверка живости для редактора.
// GET /health
func (h *Handler) LegacyHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Workflow engine is running",
	})
}

// LegacyExecute выполняет документ из тела запроса.
// POST /execute-workflow
func (h *Handler) LegacyExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		JSON(w, bodyStatus(err), LegacyError{Error: "Invalid workflow definition", Details: err.Error()})
		return
	}

	resp, err := h.execute(r.Context(), &req.Workflow, req.Options, req.Inputs)
	if err != nil {
		JSON(w, http.StatusBadRequest, LegacyError{Error: "Invalid workflow definition", Details: err.Error()})
		return
	}
	JSON(w, http.StatusOK, legacyResult(resp))
}

// LegacyExecuteByID выполняет сохранённый документ; тело — входные данные.
// POST /execute-workflow-by-id?workflow_id=...
func (h *Handler) LegacyExecuteByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_id")
	if id == "" {
		JSON(w, http.StatusBadRequest, LegacyError{Error: "workflow_id is required"})
		return
	}

	stored, err := h.workflows.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		JSON(w, http.StatusNotFound, LegacyError{
			Error:   "Workflow not found",
			Details: "Workflow with id " + id + " not found",
		})
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	var inputs map[string]any
	if err := decodeJSON(r, &inputs, true); err != nil {
		JSON(w, bodyStatus(err), LegacyError{Error: "Invalid input data", Details: err.Error()})
		return
	}

	doc := stored.Document
	resp, err := h.execute(r.Context(), &doc, domain.ExecutionOptions{}, inputs)
	if err != nil {
		JSON(w, http.StatusBadRequest, LegacyError{Error: "Failed to build workflow nodes", Details: err.Error()})
		return
	}
	JSON(w, http.StatusOK, legacyResult(resp))
}

// LegacyCreate сохраняет документ и возвращает его новый ID.
// POST /create-workflow
func (h *Handler) LegacyCreate(w http.ResponseWriter, r *http.Request) {
	var doc domain.Workflow
	if err := decodeJSON(r, &doc, false); err != nil {
		JSON(w, bodyStatus(err), LegacyError{Error: "Invalid workflow definition", Details: err.Error()})
		return
	}

	stored, _, err := h.createWorkflow(r, doc)
	if err != nil {
		if isValidation(err) {
			JSON(w, http.StatusBadRequest, LegacyError{Error: "Invalid workflow definition", Details: err.Error()})
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, LegacyResult{
		Status:       "success",
		Message:      "Workflow created successfully",
		WorkflowID:   stored.ID,
		WorkflowName: stored.Name,
	})
}

func legacyResult(resp *domain.ExecutionResponse) LegacyResult {
	out := LegacyResult{
		Status:       "success",
		Message:      "Workflow executed successfully",
		WorkflowID:   resp.WorkflowID,
		WorkflowName: resp.WorkflowName,
		Data:         resp.FinalScope,
		Result:       resp,
	}
	if resp.Status != domain.RunStatusCompleted {
		out.Status = "error"
		out.Message = "Workflow " + string(resp.Status)
		if resp.Error != nil {
			out.Message += ": " + resp.Error.Error()
		}
	}
	return out
}
