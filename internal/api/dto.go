package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/domain"
)

// Workflow DTOs

// ExecuteRequest — документ с параметрами выполнения.
// Поля документа лежат на верхнем уровне, как их отправляет редактор.
type ExecuteRequest struct {
	domain.Workflow

	Options domain.ExecutionOptions `json:"options"`
	Inputs  map[string]any          `json:"inputs,omitempty"`
}

// ExecuteByIDRequest — параметры выполнения сохранённого документа.
type ExecuteByIDRequest struct {
	Options domain.ExecutionOptions `json:"options"`
	Inputs  map[string]any          `json:"inputs,omitempty"`
}

// ValidateResponse — результат валидации.
type ValidateResponse struct {
	Valid    bool            `json:"valid"`
	Workflow domain.Workflow `json:"workflow"`
	Warnings []string        `json:"warnings,omitempty"`
}

// WorkflowResponse — сохранённый документ.
type WorkflowResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Document  domain.Workflow `json:"document"`
	Warnings  []string        `json:"warnings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// WorkflowFromDomain конвертирует domain.StoredWorkflow в WorkflowResponse.
func WorkflowFromDomain(w domain.StoredWorkflow) WorkflowResponse {
	return WorkflowResponse{
		ID:        w.ID,
		Name:      w.Name,
		Document:  w.Document,
		CreatedAt: w.CreatedAt,
	}
}

// WorkflowSummary — элемент списка без тела документа.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryFromDomain конвертирует domain.StoredWorkflow в WorkflowSummary.
func SummaryFromDomain(w domain.StoredWorkflow) WorkflowSummary {
	return WorkflowSummary{
		ID:        w.ID,
		Name:      w.Name,
		Nodes:     len(w.Document.Nodes),
		Edges:     len(w.Document.Edges),
		CreatedAt: w.CreatedAt,
	}
}

// Run DTOs

// CreateRunRequest — запрос асинхронного выполнения.
type CreateRunRequest = ExecuteByIDRequest

// RunResponse — асинхронный run.
type RunResponse struct {
	ID         uuid.UUID                 `json:"id"`
	WorkflowID string                    `json:"workflow_id"`
	Status     string                    `json:"status"`
	Inputs     map[string]any            `json:"inputs,omitempty"`
	Options    domain.ExecutionOptions   `json:"options"`
	Result     *domain.ExecutionResponse `json:"result,omitempty"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  *time.Time                `json:"started_at,omitempty"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Status:     string(r.Status),
		Inputs:     r.Inputs,
		Options:    r.Options,
		Result:     r.Result,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// CancelResponse — результат запроса отмены.
type CancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Legacy DTOs

// LegacyResult — ответ маршрутов редактора.
type LegacyResult struct {
	Status       string                    `json:"status"`
	Message      string                    `json:"message"`
	WorkflowID   string                    `json:"workflow_id"`
	WorkflowName string                    `json:"workflow_name"`
	Data         any                       `json:"data,omitempty"`
	Result       *domain.ExecutionResponse `json:"result,omitempty"`
}

// LegacyError — ошибка маршрутов редактора.
type LegacyError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
