package runner

import (
	"fmt"

	"github.com/shaiso/Graphflow/internal/domain"
)

// State — состояние walker'а.
type State string

const (
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateBranching State = "branching"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateAborted   State = "aborted"
)

// transitions — допустимые переходы.
var transitions = map[State][]State{
	StateReady:     {StateRunning},
	StateRunning:   {StateBranching, StateFailed, StateAborted},
	StateBranching: {StateRunning, StateCompleted, StateFailed},
}

// IsTerminal возвращает true для финальных состояний.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// CanTransition проверяет, допустим ли переход в next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Status возвращает статус run для финального состояния.
func (s State) Status() domain.RunStatus {
	switch s {
	case StateCompleted:
		return domain.RunStatusCompleted
	case StateAborted:
		return domain.RunStatusAborted
	case StateFailed:
		return domain.RunStatusFailed
	default:
		return domain.RunStatusRunning
	}
}

// machine — state machine одного run.
type machine struct {
	state State
}

func newMachine() *machine {
	return &machine{state: StateReady}
}

// to выполняет переход; недопустимый переход — ошибка программирования.
func (m *machine) to(next State) error {
	if !m.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	m.state = next
	return nil
}
