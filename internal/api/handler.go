package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/cancel"
	"github.com/shaiso/Graphflow/internal/config"
	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/runner"
)

// WorkflowStore — хранилище сохранённых документов.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.StoredWorkflow) error
	GetByID(ctx context.Context, id string) (*domain.StoredWorkflow, error)
	List(ctx context.Context, limit, offset int) ([]domain.StoredWorkflow, error)
	Delete(ctx context.Context, id string) error
}

// RunStore — хранилище асинхронных runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	CancelPending(ctx context.Context, run *domain.Run) error
}

// RunPublisher ставит runs в очередь воркеров.
type RunPublisher interface {
	PublishRunPending(ctx context.Context, runID uuid.UUID, workflowID string) error
}

// Canceller отменяет run, который может исполняться в другом процессе.
// Реализуют cancel.Registry и cancel.RedisBus.
type Canceller interface {
	CancelRun(ctx context.Context, runID string) error
}

// Handler — обработчик API со всеми зависимостями.
type Handler struct {
	workflows WorkflowStore
	runs      RunStore
	runner    *runner.Runner
	engine    *config.EngineConfig
	publisher RunPublisher
	cancels   *cancel.Registry
	canceller Canceller
	metrics   http.Handler
	maxBody   int64
	logger    *slog.Logger
	started   time.Time
}

// Config — зависимости Handler.
type Config struct {
	Workflows WorkflowStore
	Runs      RunStore
	Runner    *runner.Runner

	// Engine — серверные настройки выполнения; nil даёт config.Default().
	Engine *config.EngineConfig

	// Publisher опционален: без него runs подбирает polling воркера.
	Publisher RunPublisher

	// Cancels отслеживает синхронные runs этого процесса.
	Cancels *cancel.Registry

	// Canceller доставляет отмену воркерам; по умолчанию Cancels.
	Canceller Canceller

	// Metrics обслуживает GET /metrics, если задан.
	Metrics http.Handler

	// MaxBodyBytes ограничивает размер тела запроса (по умолчанию 4 MiB).
	MaxBodyBytes int64

	Logger *slog.Logger
}

// DefaultMaxBodyBytes — лимит тела запроса по умолчанию.
const DefaultMaxBodyBytes int64 = 4 << 20

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		runner:    cfg.Runner,
		engine:    cfg.Engine,
		publisher: cfg.Publisher,
		cancels:   cfg.Cancels,
		canceller: cfg.Canceller,
		metrics:   cfg.Metrics,
		maxBody:   cfg.MaxBodyBytes,
		logger:    cfg.Logger,
		started:   time.Now(),
	}

	if h.engine == nil {
		h.engine = config.Default()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.cancels == nil {
		h.cancels = cancel.NewRegistry()
	}
	if h.canceller == nil {
		h.canceller = h.cancels
	}
	return h
}

// validate строит граф с учётом серверных настроек.
func (h *Handler) validate(doc *domain.Workflow, opts domain.ExecutionOptions) (*engine.Workflow, error) {
	return engine.Validate(doc, engine.ValidateOptions{AllowSelfLoopEdges: opts.AllowSelfLoopEdges})
}

// execute синхронно валидирует и исполняет документ.
// Ошибка возвращается только для невалидного документа.
func (h *Handler) execute(ctx context.Context, doc *domain.Workflow, opts domain.ExecutionOptions, inputs map[string]any) (*domain.ExecutionResponse, error) {
	opts = h.engine.Effective(opts)

	wf, err := h.validate(doc, opts)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx, release := h.cancels.Track(ctx, runID)
	defer release()

	return h.runner.Run(ctx, wf, runner.OptionsFrom(runID, opts, inputs)), nil
}
