package runner

import "errors"

// Ошибки walker'а.
var (
	// ErrInvalidTransition — недопустимый переход state machine.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrExecutorPanic — исполнитель узла запаниковал.
	ErrExecutorPanic = errors.New("executor panicked")

	// ErrNoWorkflow — Run вызван без workflow.
	ErrNoWorkflow = errors.New("workflow is nil")
)
