package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/runner"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

// handleRunPending обрабатывает сообщение из runs.pending.
func (w *Worker) handleRunPending(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](msg)
	if err != nil {
		return fmt.Errorf("%w: parse run.pending: %v", mq.ErrPermanent, err)
	}
	if payload.RunID == uuid.Nil {
		return fmt.Errorf("%w: run.pending without run_id", mq.ErrPermanent)
	}

	err = w.ProcessRun(ctx, payload.RunID)
	if errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrRunNotPending) {
		w.logger.Debug("run skipped", "run_id", payload.RunID, "reason", err)
		return nil
	}
	return err
}

// ProcessRun забирает pending run и исполняет его до конца.
//
// ErrRunNotPending означает, что run уже взят, отменён или завершён; это не ошибка.
// Захваченный run доводится до конца и при остановке воркера: отменить его
// может только запрос отмены через реестр.
func (w *Worker) ProcessRun(ctx context.Context, runID uuid.UUID) error {
	run, err := w.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// run регистрируется до захвата: отмена, пришедшая сразу после
	// перехода в running, застанет его в реестре
	base := context.WithoutCancel(ctx)
	runCtx, release := w.cancels.Track(base, run.ID.String())
	defer release()

	if err := w.runs.ClaimPending(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	logger := telemetry.WithWorkflowID(telemetry.WithRunID(w.logger, run.ID.String()), run.WorkflowID)
	logger.Info("run claimed")

	wf, err := w.loadWorkflow(base, run)
	if err != nil {
		reason := domain.ReasonInternalError
		var vErr *engine.ValidationError
		if errors.As(err, &vErr) || errors.Is(err, ErrWorkflowNotFound) {
			reason = domain.ReasonBadConfig
		}
		run.MarkFailed(reason, err.Error())
		logger.Warn("run rejected", "error", run.Error)
		return w.finish(base, run, reason)
	}

	resp := w.runner.Run(runCtx, wf, runner.OptionsFrom(run.ID.String(), run.Options, run.Inputs))

	run.Finish(resp)
	var reason domain.Reason
	if resp.Error != nil {
		reason = resp.Error.Reason
	}
	return w.finish(base, run, reason)
}

// loadWorkflow загружает документ run'а и строит неизменяемый граф.
func (w *Worker) loadWorkflow(ctx context.Context, run *domain.Run) (*engine.Workflow, error) {
	stored, err := w.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, run.WorkflowID)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	doc := stored.Document
	return engine.Validate(&doc, engine.ValidateOptions{
		AllowSelfLoopEdges: run.Options.AllowSelfLoopEdges,
	})
}

// finish сохраняет терминальный run и публикует run.finished.
func (w *Worker) finish(ctx context.Context, run *domain.Run, reason domain.Reason) error {
	err := w.runs.Finish(ctx, run)
	if errors.Is(err, repo.ErrInvalidState) {
		// итог уже записан оркестратором, он же опубликовал run.finished
		w.logger.Warn("run finalized elsewhere, result dropped",
			"run_id", run.ID,
			"status", run.Status,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if w.publisher == nil {
		return nil
	}

	payload := mq.RunFinishedPayload{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     string(run.Status),
		Reason:     string(reason),
		DurationMs: run.Duration().Milliseconds(),
	}
	if run.Result != nil {
		payload.Steps = run.Result.Steps
	}

	if err := w.publisher.PublishRunFinished(ctx, payload); err != nil {
		// run уже сохранён, клиенты увидят статус через API
		w.logger.Warn("failed to publish run.finished", "run_id", run.ID, "error", err)
	}
	return nil
}
