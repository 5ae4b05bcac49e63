package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	rabbitOnce sync.Once
	rabbitURL  string
	rabbitErr  error
)

// RabbitURL возвращает AMQP URL общего RabbitMQ-контейнера.
//
// Если задан TEST_AMQP_URL, используется он. Без Docker тест пропускается.
func RabbitURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("TEST_AMQP_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("skipping RabbitMQ test in short mode")
	}

	rabbitOnce.Do(func() {
		rabbitURL, rabbitErr = startRabbit()
	})
	if rabbitErr != nil {
		t.Skipf("skipping RabbitMQ test: %v", rabbitErr)
	}
	return rabbitURL
}

func startRabbit() (url string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rabbitmq container panicked: %v", r)
		}
	}()

	container, err := testcontainers.Run(
		ctx, "rabbitmq:3.13-alpine",
		testcontainers.WithExposedPorts("5672/tcp"),
		testcontainers.WithEnv(map[string]string{
			"RABBITMQ_DEFAULT_USER": "graphflow",
			"RABBITMQ_DEFAULT_PASS": "graphflow",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("start rabbitmq container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("rabbitmq container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5672/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("rabbitmq container port: %w", err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("amqp://graphflow:graphflow@%s:%s/", host, port.Port()), nil
}
