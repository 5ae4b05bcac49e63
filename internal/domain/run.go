package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus — статус выполнения workflow.
type RunStatus string

const (
	// RunStatusPending — run создан и ждёт воркера.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — walker обходит граф.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted — достигнут узел без подходящего исходящего ребра.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — узел упал и не помечен continue-on-error,
	// либо ветвление оказалось неоднозначным.
	RunStatusFailed RunStatus = "failed"

	// RunStatusAborted — исчерпан лимит шагов или времени, либо run отменён.
	RunStatusAborted RunStatus = "aborted"
)

// String возвращает строковое представление статуса.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// IsValid проверяет допустимость статуса.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// Reason — машинно-читаемая причина завершения со статусом failed/aborted.
type Reason string

const (
	ReasonTypeMismatch      Reason = "TypeMismatch"
	ReasonStoreError        Reason = "StoreError"
	ReasonBadConfig         Reason = "BadConfig"
	ReasonAmbiguousBranch   Reason = "AmbiguousBranch"
	ReasonStepLimitExceeded Reason = "StepLimitExceeded"
	ReasonTimeLimitExceeded Reason = "TimeLimitExceeded"
	ReasonCancelled         Reason = "Cancelled"
	ReasonUnknownNodeType   Reason = "UnknownNodeType"
	ReasonInternalError     Reason = "InternalError"
)

// ExecutionOptions — параметры выполнения, которые может передать клиент.
//
// Лимиты могут только ужесточать серверные значения.
type ExecutionOptions struct {
	MaxSteps               int      `json:"maxSteps,omitempty"`
	TimeBudgetMs           int64    `json:"timeBudgetMs,omitempty"`
	AllowSelfLoopEdges     bool     `json:"allowSelfLoopEdges,omitempty"`
	ContinueOnErrorNodeIDs []string `json:"continueOnErrorNodeIds,omitempty"`
}

// ExecutionError — описание причины неуспешного завершения.
type ExecutionError struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
}

// Error реализует интерфейс error.
func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return string(e.Reason) + " at node " + e.NodeID + ": " + e.Message
	}
	return string(e.Reason) + ": " + e.Message
}

// TraceEntry — запись о выполнении одного узла.
type TraceEntry struct {
	// Step — порядковый номер шага (с 1).
	Step int `json:"step"`

	NodeID string   `json:"nodeId"`
	Type   NodeType `json:"type"`

	// InputSnapshot — состояние scope до выполнения узла.
	InputSnapshot Values `json:"inputSnapshot"`

	// OutputLabel — выданная метка; пустая, если узел упал без continue-on-error.
	OutputLabel string `json:"outputLabel,omitempty"`

	// OutputData — данные, которые вернул исполнитель.
	OutputData any `json:"outputData"`

	DurationMs int64           `json:"durationMs"`
	Error      *ExecutionError `json:"error,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// ExecutionResponse — итог выполнения workflow.
type ExecutionResponse struct {
	RunID        string `json:"runId,omitempty"`
	WorkflowID   string `json:"workflowId,omitempty"`
	WorkflowName string `json:"workflowName,omitempty"`

	Status     RunStatus       `json:"status"`
	Trace      []TraceEntry    `json:"trace"`
	FinalScope Values          `json:"finalScope"`
	Error      *ExecutionError `json:"error,omitempty"`

	Steps      int      `json:"steps"`
	DurationMs int64    `json:"durationMs"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Run — сохранённый экземпляр выполнения workflow.
//
// Run создаётся при асинхронном запуске (статус pending) и при синхронном
// выполнении через API (сразу в финальном статусе).
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на сохранённый workflow. Пусто для inline-документов.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Inputs — данные, которые мёржатся поверх initialData узла start.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Options — параметры выполнения, переданные клиентом.
	Options ExecutionOptions `json:"options"`

	// Result — итог выполнения; nil, пока run не завершён.
	Result *ExecutionResponse `json:"result,omitempty"`

	// Error — текст ошибки для статусов failed/aborted.
	Error string `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewRun создаёт run в статусе pending.
func NewRun(workflowID string, inputs map[string]any, opts ExecutionOptions) *Run {
	return &Run{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Status:     RunStatusPending,
		Inputs:     inputs,
		Options:    opts,
		CreatedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run в финальном статусе.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус running.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// Finish фиксирует результат выполнения.
func (r *Run) Finish(resp *ExecutionResponse) {
	now := time.Now()
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.FinishedAt = &now
	r.Result = resp
	r.Status = resp.Status
	r.Error = ""
	if resp.Error != nil {
		r.Error = resp.Error.Error()
	}
}

// MarkFailed переводит run в failed без результата обхода
// (например, документ перестал проходить валидацию).
func (r *Run) MarkFailed(reason Reason, msg string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = (&ExecutionError{Reason: reason, Message: msg}).Error()
}

// MarkCancelled переводит run, не начавший выполнение, в aborted.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusAborted
	r.FinishedAt = &now
	r.Error = (&ExecutionError{Reason: ReasonCancelled, Message: "run cancelled before start"}).Error()
}
