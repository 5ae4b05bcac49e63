package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultStaleAfter    = 5 * time.Minute
	defaultSweepInterval = 30 * time.Second
	defaultBatchSize     = 100
)

// RunStore — операции над runs, нужные оркестратору.
type RunStore interface {
	FailStale(ctx context.Context, startedBefore time.Time, message string, limit int) ([]domain.Run, error)
}

// FinishedPublisher сообщает о завершённых runs.
type FinishedPublisher interface {
	PublishRunFinished(ctx context.Context, payload mq.RunFinishedPayload) error
}

// Orchestrator восстанавливает потерянные runs и собирает статистику.
type Orchestrator struct {
	runs      RunStore
	publisher FinishedPublisher
	conn      *mq.Connection
	metrics   *telemetry.Metrics
	stats     *Stats

	finishedConsumer *mq.Consumer

	// Configuration
	staleAfter    time.Duration
	sweepInterval time.Duration
	batchSize     int
	now           func() time.Time

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Runs RunStore

	// Publisher и Conn опциональны. Без Conn статистика собирается только
	// по runs, которые восстановил этот процесс.
	Publisher FinishedPublisher
	Conn      *mq.Connection

	// StaleAfter — сколько run может быть в running без результата
	// (по умолчанию 5m). Должно превышать бюджет времени run.
	StaleAfter time.Duration

	// SweepInterval — период поиска застрявших runs (по умолчанию 30s).
	SweepInterval time.Duration

	// BatchSize — максимум runs за один проход (по умолчанию 100).
	BatchSize int

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		runs:          cfg.Runs,
		publisher:     cfg.Publisher,
		conn:          cfg.Conn,
		metrics:       cfg.Metrics,
		stats:         NewStats(),
		staleAfter:    cfg.StaleAfter,
		sweepInterval: cfg.SweepInterval,
		batchSize:     cfg.BatchSize,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}

	if o.staleAfter <= 0 {
		o.staleAfter = defaultStaleAfter
	}
	if o.sweepInterval <= 0 {
		o.sweepInterval = defaultSweepInterval
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.stats.now = o.now

	return o
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для runs.finished (если есть соединение)
//   - Периодический поиск застрявших runs
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"stale_after", o.staleAfter,
		"sweep_interval", o.sweepInterval,
		"queue_enabled", o.conn != nil,
	)

	if o.conn != nil {
		o.finishedConsumer = mq.NewConsumer(o.conn, mq.ConsumerConfig{
			Queue:    mq.QueueRunsFinished,
			Handler:  o.handleRunFinished,
			Prefetch: 20,
			Logger:   o.logger,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.finishedConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("finished consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.sweepLoop(ctx)
	}()

	return nil
}

// Stop останавливает Orchestrator и ждёт завершения горутин.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator")

	if o.finishedConsumer != nil {
		o.finishedConsumer.Stop()
	}
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Stats возвращает статистику завершённых runs.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// sweepLoop периодически вызывает Sweep.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	// Первый проход сразу: runs могли застрять, пока сервис был выключен
	o.sweepAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepAll(ctx)
		}
	}
}

// sweepAll повторяет Sweep, пока находятся полные пачки.
func (o *Orchestrator) sweepAll(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := o.Sweep(ctx)
		if err != nil {
			o.logger.Error("sweep failed", "error", err)
			return
		}
		if n < o.batchSize {
			return
		}
	}
}
