package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/cancel"
	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/runner"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// RunStore — хранилище runs.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
	ClaimPending(ctx context.Context, run *domain.Run) error
	Finish(ctx context.Context, run *domain.Run) error
}

// WorkflowStore — хранилище сохранённых документов.
type WorkflowStore interface {
	GetByID(ctx context.Context, id string) (*domain.StoredWorkflow, error)
}

// FinishedPublisher сообщает о завершённых runs.
type FinishedPublisher interface {
	PublishRunFinished(ctx context.Context, payload mq.RunFinishedPayload) error
}

// Config — конфигурация Worker.
type Config struct {
	Runs      RunStore
	Workflows WorkflowStore
	Runner    *runner.Runner

	// Cancels — реестр отмены; если nil, создаётся локальный.
	Cancels *cancel.Registry

	// Publisher и Conn опциональны: без Conn воркер работает только на polling.
	Publisher FinishedPublisher
	Conn      *mq.Connection

	PollInterval time.Duration
	BatchSize    int
	Prefetch     int

	Logger *slog.Logger
}

// Worker забирает pending runs и исполняет их.
type Worker struct {
	runs      RunStore
	workflows WorkflowStore
	runner    *runner.Runner
	cancels   *cancel.Registry
	publisher FinishedPublisher
	conn      *mq.Connection

	pollInterval time.Duration
	batchSize    int
	prefetch     int

	logger   *slog.Logger
	consumer *mq.Consumer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		runs:         cfg.Runs,
		workflows:    cfg.Workflows,
		runner:       cfg.Runner,
		cancels:      cfg.Cancels,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		prefetch:     cfg.Prefetch,
		logger:       cfg.Logger,
	}

	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.prefetch <= 0 {
		w.prefetch = defaultPrefetch
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.cancels == nil {
		w.cancels = cancel.NewRegistry()
	}
	w.logger = w.logger.With("component", "worker")

	return w
}

// Start запускает consumer runs.pending (если есть соединение) и polling.
func (w *Worker) Start(ctx context.Context) {
	ctx, stop := context.WithCancel(ctx)
	w.cancel = stop

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"queue_enabled", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, mq.ConsumerConfig{
			Queue:    mq.QueueRunsPending,
			Handler:  w.handleRunPending,
			Prefetch: w.prefetch,
			Logger:   w.logger,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("runs consumer stopped", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop останавливает приём runs и ждёт, пока захваченные runs
// завершатся и сохранят результат.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker")

	if w.consumer != nil {
		w.consumer.Stop()
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// Cancels возвращает реестр активных runs воркера.
func (w *Worker) Cancels() *cancel.Registry {
	return w.cancels
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// сразу подбираем runs, созданные пока воркер был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	pending, err := w.runs.ListPending(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to list pending runs", "error", err)
		}
		return
	}
	if len(pending) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(pending))

	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		err := w.ProcessRun(ctx, pending[i].ID)
		if err != nil && !errors.Is(err, ErrRunNotPending) {
			w.logger.Error("failed to process run from poll", "run_id", pending[i].ID, "error", err)
		}
	}
}
