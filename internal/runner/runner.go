package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/steps"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultMaxSteps   = 10000
	DefaultTimeBudget = 30 * time.Second
)

// Config — конфигурация Runner.
type Config struct {
	// Registry — исполнители узлов (обязателен).
	Registry *steps.Registry

	// MaxSteps — максимум выполненных узлов за run (по умолчанию 10000).
	MaxSteps int

	// TimeBudget — бюджет времени на run (по умолчанию 30s).
	TimeBudget time.Duration

	// Logger — логгер (по умолчанию slog.Default()).
	Logger *slog.Logger

	// Metrics — метрики; nil отключает.
	Metrics *telemetry.Metrics

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Runner выполняет проверенные workflow.
//
// Runner не хранит состояния run'ов и безопасен для конкурентного использования:
// каждый вызов Run работает со своим scope и trace.
type Runner struct {
	registry   *steps.Registry
	maxSteps   int
	timeBudget time.Duration
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Registry == nil {
		cfg.Registry = steps.NewRegistry()
	}

	return &Runner{
		registry:   cfg.Registry,
		maxSteps:   cfg.MaxSteps,
		timeBudget: cfg.TimeBudget,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

// MaxSteps возвращает серверный лимит шагов.
func (r *Runner) MaxSteps() int { return r.maxSteps }

// TimeBudget возвращает серверный бюджет времени.
func (r *Runner) TimeBudget() time.Duration { return r.timeBudget }

// RunOptions — параметры одного выполнения.
type RunOptions struct {
	// RunID — идентификатор run (для логов и ответа).
	RunID string

	// MaxSteps и TimeBudget могут только уменьшить серверные лимиты.
	MaxSteps   int
	TimeBudget time.Duration

	// ContinueOnError — узлы, ошибка которых не останавливает run.
	ContinueOnError []string

	// Inputs мёржатся поверх initialData узла start.
	Inputs map[string]any
}

// OptionsFrom строит RunOptions из клиентских параметров.
func OptionsFrom(runID string, opts domain.ExecutionOptions, inputs map[string]any) RunOptions {
	return RunOptions{
		RunID:           runID,
		MaxSteps:        opts.MaxSteps,
		TimeBudget:      time.Duration(opts.TimeBudgetMs) * time.Millisecond,
		ContinueOnError: opts.ContinueOnErrorNodeIDs,
		Inputs:          inputs,
	}
}

// Run выполняет workflow до финального состояния.
//
// Всегда возвращает ответ: ошибки узлов, лимиты и отмена отражаются
// в Status и Error, а не в возвращаемой ошибке.
func (r *Runner) Run(ctx context.Context, wf *engine.Workflow, opts RunOptions) *domain.ExecutionResponse {
	started := r.now()
	logger := r.logger
	if opts.RunID != "" {
		logger = telemetry.WithRunID(logger, opts.RunID)
	}

	if wf == nil {
		resp := Report(nil, domain.Values{}, StateFailed, &domain.ExecutionError{
			Reason:  domain.ReasonInternalError,
			Message: ErrNoWorkflow.Error(),
		})
		resp.RunID = opts.RunID
		return resp
	}
	logger = telemetry.WithWorkflowID(logger, wf.ID())

	w := &walk{
		runner:     r,
		wf:         wf,
		opts:       opts,
		scope:      engine.NewScope(),
		machine:    newMachine(),
		started:    started,
		logger:     logger,
		continueOn: make(map[string]bool, len(opts.ContinueOnError)),
	}
	w.maxSteps, w.budget = r.limits(opts)
	for _, id := range opts.ContinueOnError {
		w.continueOn[id] = true
	}

	logger.Info("run started",
		slog.Int("nodes", wf.Size()),
		slog.Int("max_steps", w.maxSteps),
		slog.Duration("time_budget", w.budget),
	)

	terminal, cause := w.run(ctx)

	resp := Report(w.trace, w.scope.Snapshot(), terminal, cause)
	resp.RunID = opts.RunID
	resp.WorkflowID = wf.ID()
	resp.WorkflowName = wf.Name()
	resp.DurationMs = r.now().Sub(started).Milliseconds()
	if warnings := append(wf.Warnings(), w.warnings...); len(warnings) > 0 {
		resp.Warnings = warnings
	}

	r.metrics.ObserveRun(string(resp.Status), resp.Steps)

	attrs := []any{
		slog.String("status", string(resp.Status)),
		slog.Int("steps", resp.Steps),
		slog.Int64("duration_ms", resp.DurationMs),
	}
	if resp.Error != nil {
		attrs = append(attrs,
			slog.String("reason", string(resp.Error.Reason)),
			slog.String("node_id", resp.Error.NodeID),
		)
	}
	logger.Info("run finished", attrs...)

	return resp
}

// limits возвращает эффективные лимиты run'а.
func (r *Runner) limits(opts RunOptions) (int, time.Duration) {
	maxSteps := r.maxSteps
	if opts.MaxSteps > 0 && opts.MaxSteps < maxSteps {
		maxSteps = opts.MaxSteps
	}
	budget := r.timeBudget
	if opts.TimeBudget > 0 && opts.TimeBudget < budget {
		budget = opts.TimeBudget
	}
	return maxSteps, budget
}

// walk — состояние одного выполнения.
type walk struct {
	runner  *Runner
	wf      *engine.Workflow
	opts    RunOptions
	scope   *engine.Scope
	machine *machine
	started time.Time
	logger  *slog.Logger

	maxSteps   int
	budget     time.Duration
	continueOn map[string]bool

	trace    []domain.TraceEntry
	warnings []string
}

func (w *walk) run(ctx context.Context) (State, *domain.ExecutionError) {
	if err := w.machine.to(StateRunning); err != nil {
		return StateFailed, internalError("", err)
	}

	current := w.wf.Start()
	for {
		if cause := w.checkBoundary(ctx, current); cause != nil {
			if err := w.machine.to(StateAborted); err != nil {
				return StateFailed, internalError(current.ID, err)
			}
			return StateAborted, cause
		}

		label, cause := w.step(ctx, current)
		if cause != nil {
			if err := w.machine.to(StateFailed); err != nil {
				return StateFailed, internalError(current.ID, err)
			}
			return StateFailed, cause
		}

		if err := w.machine.to(StateBranching); err != nil {
			return StateFailed, internalError(current.ID, err)
		}

		next := w.wf.Next(current.ID, label)
		switch len(next) {
		case 0:
			if err := w.machine.to(StateCompleted); err != nil {
				return StateFailed, internalError(current.ID, err)
			}
			return StateCompleted, nil

		case 1:
			node, ok := w.wf.Node(next[0].To)
			if !ok {
				return StateFailed, internalError(current.ID, fmt.Errorf("edge target %q not found", next[0].To))
			}
			if err := w.machine.to(StateRunning); err != nil {
				return StateFailed, internalError(current.ID, err)
			}
			current = node

		default:
			if err := w.machine.to(StateFailed); err != nil {
				return StateFailed, internalError(current.ID, err)
			}
			return StateFailed, &domain.ExecutionError{
				Reason:  domain.ReasonAmbiguousBranch,
				Message: fmt.Sprintf("%d edges match label %q", len(next), label),
				NodeID:  current.ID,
			}
		}
	}
}

// checkBoundary проверяет отмену, лимит шагов и бюджет времени
// перед выполнением next.
func (w *walk) checkBoundary(ctx context.Context, next *engine.Node) *domain.ExecutionError {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.ExecutionError{
				Reason:  domain.ReasonTimeLimitExceeded,
				Message: "context deadline exceeded",
				NodeID:  next.ID,
			}
		}
		return &domain.ExecutionError{
			Reason:  domain.ReasonCancelled,
			Message: "run cancelled",
			NodeID:  next.ID,
		}
	}

	if len(w.trace) >= w.maxSteps {
		return &domain.ExecutionError{
			Reason:  domain.ReasonStepLimitExceeded,
			Message: fmt.Sprintf("step limit of %d reached", w.maxSteps),
			NodeID:  next.ID,
		}
	}

	if elapsed := w.runner.now().Sub(w.started); elapsed >= w.budget {
		return &domain.ExecutionError{
			Reason:  domain.ReasonTimeLimitExceeded,
			Message: fmt.Sprintf("time budget of %s exceeded after %s", w.budget, elapsed.Truncate(time.Millisecond)),
			NodeID:  next.ID,
		}
	}

	return nil
}

// step выполняет один узел и записывает его в trace.
// Возвращает метку для выбора ребра или причину остановки.
func (w *walk) step(ctx context.Context, node *engine.Node) (string, *domain.ExecutionError) {
	entry := domain.TraceEntry{
		Step:          len(w.trace) + 1,
		NodeID:        node.ID,
		Type:          node.Type,
		InputSnapshot: w.scope.Snapshot(),
	}
	logger := telemetry.WithNodeID(w.logger, node.ID)

	begin := w.runner.now()
	res, err := w.execute(ctx, node)
	elapsed := w.runner.now().Sub(begin)
	entry.DurationMs = elapsed.Milliseconds()

	if err == nil && res == nil {
		err = fmt.Errorf("executor for %s returned no result", node.Type)
	}

	if err != nil {
		w.runner.metrics.ObserveNode(string(node.Type), "error", elapsed)
		cause := causeOf(node.ID, err)
		entry.Error = cause

		if !w.continueOn[node.ID] {
			w.trace = append(w.trace, entry)
			logger.Warn("node failed",
				slog.String("type", string(node.Type)),
				slog.String("reason", string(cause.Reason)),
				slog.String("error", err.Error()),
			)
			return "", cause
		}

		label := domain.LabelDefault
		if w.wf.HasLabel(node.ID, domain.LabelError) {
			label = domain.LabelError
		}
		entry.OutputLabel = label
		w.trace = append(w.trace, entry)
		w.warnings = append(w.warnings,
			fmt.Sprintf("node %s failed (%s), continuing on %q", node.ID, cause.Reason, label))

		logger.Warn("node failed, continuing",
			slog.String("type", string(node.Type)),
			slog.String("label", label),
			slog.String("error", err.Error()),
		)
		return label, nil
	}

	w.runner.metrics.ObserveNode(string(node.Type), "ok", elapsed)
	w.scope.Apply(res.Mutations)

	entry.OutputLabel = res.OutputLabel
	entry.OutputData = res.Data
	entry.Warnings = res.Warnings
	w.trace = append(w.trace, entry)

	logger.Debug("node executed",
		slog.String("type", string(node.Type)),
		slog.String("label", res.OutputLabel),
		slog.Duration("duration", elapsed),
	)
	return res.OutputLabel, nil
}

// execute вызывает исполнитель узла.
//
// Исполнитель получает контекст без отмены: отмена run'а проверяется
// только между узлами. Паника исполнителя превращается в ошибку.
func (w *walk) execute(ctx context.Context, node *engine.Node) (res *steps.Result, err error) {
	exec, err := w.runner.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}

	cfg := node.Config
	if node.Type == domain.NodeTypeStart && len(w.opts.Inputs) > 0 {
		cfg = mergeInputs(cfg, w.opts.Inputs)
	}

	req := &steps.Request{
		NodeID: node.ID,
		Config: cfg,
		Scope:  w.scope,
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, p)
		}
	}()

	return exec.Execute(context.WithoutCancel(ctx), req)
}

// mergeInputs возвращает копию конфига start с inputs поверх initialData.
// Перекрытый ключ остаётся на своём месте, новые ключи идут следом
// в лексикографическом порядке.
func mergeInputs(cfg domain.NodeConfig, inputs map[string]any) domain.NodeConfig {
	start, ok := cfg.(*domain.StartConfig)
	if !ok {
		return cfg
	}

	merged := start.InitialData.Clone()
	extra := domain.ValuesFromMap(inputs)
	for _, k := range extra.Keys() {
		v, _ := extra.Get(k)
		merged.Set(k, v)
	}
	return &domain.StartConfig{InitialData: merged}
}

// causeOf переводит ошибку исполнителя в причину завершения.
func causeOf(nodeID string, err error) *domain.ExecutionError {
	reason := domain.ReasonInternalError

	var ne *steps.NodeError
	switch {
	case errors.As(err, &ne):
		switch ne.Kind {
		case steps.KindTypeMismatch:
			reason = domain.ReasonTypeMismatch
		case steps.KindStoreError:
			reason = domain.ReasonStoreError
		case steps.KindBadConfig:
			reason = domain.ReasonBadConfig
		}
	case errors.Is(err, steps.ErrExecutorNotFound):
		reason = domain.ReasonUnknownNodeType
	}

	return &domain.ExecutionError{
		Reason:  reason,
		Message: err.Error(),
		NodeID:  nodeID,
	}
}

func internalError(nodeID string, err error) *domain.ExecutionError {
	return &domain.ExecutionError{
		Reason:  domain.ReasonInternalError,
		Message: err.Error(),
		NodeID:  nodeID,
	}
}
