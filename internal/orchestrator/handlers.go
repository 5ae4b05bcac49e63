package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/mq"
)

// handleRunFinished обрабатывает сообщение из runs.finished.
func (o *Orchestrator) handleRunFinished(_ context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunFinishedPayload](msg)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", mq.ErrPermanent, ErrInvalidPayload, err)
	}
	if payload.RunID == uuid.Nil || payload.Status == "" {
		return fmt.Errorf("%w: %w", mq.ErrPermanent, ErrInvalidPayload)
	}

	if o.stats.Record(payload) {
		o.logger.Debug("run finished",
			"run_id", payload.RunID,
			"workflow_id", payload.WorkflowID,
			"status", payload.Status,
			"reason", payload.Reason,
		)
	}
	return nil
}

// Sweep переводит в failed runs, которые дольше StaleAfter находятся в running,
// и публикует по ним run.finished. Возвращает число восстановленных runs.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	if o.IsStopped() {
		return 0, ErrOrchestratorStopped
	}

	cutoff := o.now().Add(-o.staleAfter)
	msg := (&domain.ExecutionError{
		Reason:  domain.ReasonInternalError,
		Message: fmt.Sprintf("run lost: no result after %s", o.staleAfter),
	}).Error()

	runs, err := o.runs.FailStale(ctx, cutoff, msg, o.batchSize)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}

	o.metrics.ObserveRecovered(len(runs))

	for i := range runs {
		run := &runs[i]
		o.logger.Warn("stale run failed",
			"run_id", run.ID,
			"workflow_id", run.WorkflowID,
			"started_at", run.StartedAt,
		)
		o.report(ctx, run)
	}
	return len(runs), nil
}

// report публикует run.finished; без издателя учитывает run напрямую.
func (o *Orchestrator) report(ctx context.Context, run *domain.Run) {
	payload := mq.RunFinishedPayload{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     string(run.Status),
		Reason:     string(domain.ReasonInternalError),
		DurationMs: run.Duration().Milliseconds(),
	}

	if o.publisher == nil {
		o.stats.Record(payload)
		return
	}
	if err := o.publisher.PublishRunFinished(ctx, payload); err != nil {
		o.logger.Warn("failed to publish run.finished", "run_id", run.ID, "error", err)
		o.stats.Record(payload)
	}
}
