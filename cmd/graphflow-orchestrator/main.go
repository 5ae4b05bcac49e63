// Graphflow Orchestrator — следит за асинхронными runs.
//
// Orchestrator:
//   - Переводит в failed runs, потерявшие воркер (застряли в running)
//   - Собирает статистику по сообщениям run.finished
//   - Отдаёт статистику на GET /stats
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Graphflow/internal/config"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/orchestrator"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("graphflow-orchestrator")
	logger.Info("starting graphflow-orchestrator")

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

	// RabbitMQ
	var publisher orchestrator.FinishedPublisher
	mqConn, err := mq.Dial(mq.ConnectionConfig{
		URL:    config.GetEnv("RABBITMQ_URL", mq.DefaultURL),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, collecting only own recoveries", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
	}

	// run не может законно длиться дольше бюджета: узел ограничен таймаутом хранилища
	staleAfter := 2*(engineCfg.TimeBudget()+engineCfg.StoreTimeout()) + time.Minute

	orch := orchestrator.New(orchestrator.Config{
		Runs:       repo.NewRunRepo(pool),
		Publisher:  publisher,
		Conn:       mqConn,
		StaleAfter: staleAfter,
		Metrics:    telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Logger:     logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics + /stats
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": orch.Stats().All()})
	})

	server := &http.Server{
		Addr:              ":" + config.GetEnv("ORCHESTRATOR_PORT", "8081"),
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

	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("graphflow-orchestrator stopped")
}
