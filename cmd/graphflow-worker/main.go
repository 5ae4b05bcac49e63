// Graphflow Worker — исполняет асинхронные runs.
//
// Worker:
//   - Получает run.pending из RabbitMQ и подбирает pending runs polling'ом
//   - Выполняет сохранённый документ через runner
//   - Сохраняет ExecutionResponse и публикует run.finished
//   - Принимает отмену runs через Redis
//
// Workers масштабируются горизонтально: run захватывается атомарно.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Graphflow/internal/cancel"
	"github.com/shaiso/Graphflow/internal/config"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/runner"
	"github.com/shaiso/Graphflow/internal/steps"
	"github.com/shaiso/Graphflow/internal/store"
	"github.com/shaiso/Graphflow/internal/telemetry"
	"github.com/shaiso/Graphflow/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("graphflow-worker")
	logger.Info("starting graphflow-worker")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	docs, err := store.Connect(ctx, store.MongoConfig{
		URI:     config.GetEnv("MONGO_URI", store.DefaultMongoURI),
		Timeout: engineCfg.StoreTimeout(),
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer docs.Close(context.Background())
	logger.Info("mongo connected")

	r := runner.New(runner.Config{
		Registry:   steps.DefaultRegistry(docs),
		MaxSteps:   engineCfg.MaxSteps,
		TimeBudget: engineCfg.TimeBudget(),
		Logger:     logger,
		Metrics:    telemetry.NewMetrics(prometheus.DefaultRegisterer),
	})

	cancels := cancel.NewRegistry()

	// Redis: запросы отмены от API
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		client, err := cancel.NewRedisClient(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		bus := cancel.NewRedisBus(client, cancels, logger)
		go func() {
			if err := bus.Listen(ctx); err != nil {
				logger.Warn("cancel bus stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, runs of this worker cannot be cancelled remotely")
	}

	// RabbitMQ
	var publisher worker.FinishedPublisher
	mqConn, err := mq.Dial(mq.ConnectionConfig{
		URL:    config.GetEnv("RABBITMQ_URL", mq.DefaultURL),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
	}

	w := worker.New(worker.Config{
		Runs:         repo.NewRunRepo(pool),
		Workflows:    repo.NewWorkflowRepo(pool),
		Runner:       r,
		Cancels:      cancels,
		Publisher:    publisher,
		Conn:         mqConn,
		PollInterval: time.Duration(envInt("WORKER_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		Logger:       logger,
	})
	w.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + config.GetEnv("WORKER_PORT", "8082"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker: текущие runs отменяются и сохраняются как aborted
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("graphflow-worker stopped")
}

func envInt(key string, fallback int) int {
	v := config.GetEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
