package runner

import (
	"github.com/shaiso/Graphflow/internal/domain"
)

// Report собирает итог выполнения.
//
// terminal должен быть финальным состоянием; иначе run считается failed
// с InternalError. Для completed cause игнорируется.
func Report(trace []domain.TraceEntry, finalScope domain.Values, terminal State, cause *domain.ExecutionError) *domain.ExecutionResponse {
	if trace == nil {
		trace = []domain.TraceEntry{}
	}

	resp := &domain.ExecutionResponse{
		Status:     terminal.Status(),
		Trace:      trace,
		FinalScope: finalScope,
		Steps:      len(trace),
	}

	switch {
	case !terminal.IsTerminal():
		resp.Status = domain.RunStatusFailed
		resp.Error = &domain.ExecutionError{
			Reason:  domain.ReasonInternalError,
			Message: "walker stopped in non-terminal state " + string(terminal),
		}
	case terminal == StateCompleted:
		resp.Error = nil
	default:
		resp.Error = cause
		if resp.Error == nil {
			resp.Error = &domain.ExecutionError{
				Reason:  domain.ReasonInternalError,
				Message: "run finished as " + string(terminal) + " without a cause",
			}
		}
	}

	return resp
}
