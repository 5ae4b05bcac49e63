package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run уже забран другим воркером или завершён.
	ErrRunNotPending = errors.New("run is not pending")

	// ErrWorkflowNotFound — workflow run'а удалён.
	ErrWorkflowNotFound = errors.New("workflow not found")
)
