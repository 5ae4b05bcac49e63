package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrInvalidPayload — сообщение run.finished без run_id или статуса.
	ErrInvalidPayload = errors.New("invalid run.finished payload")
)
