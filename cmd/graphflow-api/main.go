// Graphflow API — HTTP-сервис проверки, хранения и выполнения workflow.
//
// API:
//   - Синхронно выполняет документы (POST /api/v1/workflows/execute)
//   - Хранит документы в PostgreSQL
//   - Ставит асинхронные runs в RabbitMQ для graphflow-worker
//   - Рассылает отмену runs через Redis
//
// Узлы mongodb_* работают с MongoDB из MONGO_URI.
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
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Graphflow/internal/api"
	"github.com/shaiso/Graphflow/internal/cancel"
	"github.com/shaiso/Graphflow/internal/config"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/runner"
	"github.com/shaiso/Graphflow/internal/steps"
	"github.com/shaiso/Graphflow/internal/store"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

var reqTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "graphflow_api_http_requests_total",
	Help: "Total HTTP requests handled by graphflow-api",
})

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("graphflow-api")
	logger.Info("starting graphflow-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	// PostgreSQL: документы и runs
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
	logger.Info("connected to database")

	// MongoDB: хранилище узлов mongodb_*
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
	logger.Info("connected to mongo")

	r := runner.New(runner.Config{
		Registry:   steps.DefaultRegistry(docs),
		MaxSteps:   engineCfg.MaxSteps,
		TimeBudget: engineCfg.TimeBudget(),
		Logger:     logger,
		Metrics:    telemetry.NewMetrics(prometheus.DefaultRegisterer),
	})

	cancels := cancel.NewRegistry()
	var canceller api.Canceller = cancels

	// Redis: отмена runs, исполняемых воркерами
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
		canceller = bus
		logger.Info("cancel bus enabled")
	} else {
		logger.Warn("REDIS_URL not set, cancel reaches only runs of this process")
	}

	// RabbitMQ: очередь асинхронных runs
	var publisher api.RunPublisher
	mqConn, err := mq.Dial(mq.ConnectionConfig{
		URL:    config.GetEnv("RABBITMQ_URL", mq.DefaultURL),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, runs will be picked up by worker polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

	// 0 оставляет api.DefaultMaxBodyBytes
	maxBody, err := strconv.ParseInt(config.GetEnv("API_MAX_BODY_BYTES", "0"), 10, 64)
	if err != nil {
		logger.Error("invalid API_MAX_BODY_BYTES", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		Workflows:    repo.NewWorkflowRepo(pool),
		Runs:         repo.NewRunRepo(pool),
		Runner:       r,
		Engine:       engineCfg,
		Publisher:    publisher,
		Cancels:      cancels,
		Canceller:    canceller,
		Metrics:      promhttp.Handler(),
		MaxBodyBytes: maxBody,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	router := api.Chain(countRequests, api.CORS())(mux)

	addr := ":" + config.GetEnv("API_PORT", "8080")

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Синхронные runs получают отмену и завершаются aborted
	for _, id := range cancels.Active() {
		cancels.Cancel(id)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTotal.Inc()
		next.ServeHTTP(w, r)
	})
}
