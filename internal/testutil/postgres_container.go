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
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// PostgresDSN возвращает строку подключения к общему PostgreSQL-контейнеру.
//
// Если задан TEST_DB_URL, используется он. Без Docker тест пропускается.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	if dsn := os.Getenv("TEST_DB_URL"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}

	pgOnce.Do(func() {
		pgDSN, pgErr = startPostgres()
	})
	if pgErr != nil {
		t.Skipf("skipping PostgreSQL test: %v", pgErr)
	}
	return pgDSN
}

func startPostgres() (dsn string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("postgres container panicked: %v", r)
		}
	}()

	container, err := testcontainers.Run(
		ctx, "postgres:16-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "graphflow",
			"POSTGRES_PASSWORD": "graphflow",
			"POSTGRES_DB":       "graphflow",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("postgres container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("postgres container port: %w", err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("postgresql://graphflow:graphflow@%s:%s/graphflow?sslmode=disable", host, port.Port()), nil
}
