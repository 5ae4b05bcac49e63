// Package config загружает настройки движка из YAML-файла и окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Graphflow/internal/domain"
)

// Значения по умолчанию.
const (
	DefaultMaxSteps       = 10000
	DefaultTimeBudgetMs   = 30000
	DefaultStoreTimeoutMs = 10000
)

// Переменные окружения, переопределяющие файл.
const (
	EnvConfigPath     = "ENGINE_CONFIG"
	EnvMaxSteps       = "ENGINE_MAX_STEPS"
	EnvTimeBudgetMs   = "ENGINE_TIME_BUDGET_MS"
	EnvAllowSelfLoops = "ENGINE_ALLOW_SELF_LOOPS"
	EnvStoreTimeoutMs = "ENGINE_STORE_TIMEOUT_MS"
)

// ErrInvalidConfig — значение конфигурации вне допустимого диапазона.
var ErrInvalidConfig = errors.New("invalid engine config")

// EngineConfig — серверные настройки выполнения.
type EngineConfig struct {
	// MaxSteps — максимум выполненных узлов за run.
	MaxSteps int `yaml:"max_steps"`

	// TimeBudgetMs — бюджет времени на run.
	TimeBudgetMs int64 `yaml:"time_budget_ms"`

	// AllowSelfLoopEdges — разрешить рёбра из узла в себя.
	AllowSelfLoopEdges bool `yaml:"allow_self_loop_edges"`

	// ContinueOnErrorNodeIDs — узлы, которым по умолчанию разрешено падать.
	ContinueOnErrorNodeIDs []string `yaml:"continue_on_error_node_ids"`

	// StoreTimeoutMs — таймаут одной операции с хранилищем.
	StoreTimeoutMs int64 `yaml:"store_timeout_ms"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *EngineConfig {
	return &EngineConfig{
		MaxSteps:       DefaultMaxSteps,
		TimeBudgetMs:   DefaultTimeBudgetMs,
		StoreTimeoutMs: DefaultStoreTimeoutMs,
	}
}

// Load читает YAML-файл; пустой path даёт значения по умолчанию.
func Load(path string) (*EngineConfig, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML (или JSON); незаданные поля получают значения по умолчанию.
func Parse(data []byte) (*EngineConfig, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv загружает файл из ENGINE_CONFIG и применяет переопределения окружения.
func FromEnv() (*EngineConfig, error) {
	cfg, err := Load(os.Getenv(EnvConfigPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv применяет переопределения из окружения.
func (c *EngineConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvMaxSteps); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvMaxSteps, v, err)
		}
		c.MaxSteps = n
	}
	if v, ok := lookup(EnvTimeBudgetMs); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvTimeBudgetMs, v, err)
		}
		c.TimeBudgetMs = n
	}
	if v, ok := lookup(EnvAllowSelfLoops); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvAllowSelfLoops, v, err)
		}
		c.AllowSelfLoopEdges = b
	}
	if v, ok := lookup(EnvStoreTimeoutMs); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvStoreTimeoutMs, v, err)
		}
		c.StoreTimeoutMs = n
	}
	return c.Validate()
}

// Validate проверяет диапазоны значений.
func (c *EngineConfig) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("%w: max_steps must be positive, got %d", ErrInvalidConfig, c.MaxSteps)
	}
	if c.TimeBudgetMs <= 0 {
		return fmt.Errorf("%w: time_budget_ms must be positive, got %d", ErrInvalidConfig, c.TimeBudgetMs)
	}
	if c.StoreTimeoutMs <= 0 {
		return fmt.Errorf("%w: store_timeout_ms must be positive, got %d", ErrInvalidConfig, c.StoreTimeoutMs)
	}
	return nil
}

// TimeBudget возвращает бюджет времени как Duration.
func (c *EngineConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetMs) * time.Millisecond
}

// StoreTimeout возвращает таймаут хранилища как Duration.
func (c *EngineConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

// Effective дополняет параметры запроса серверными значениями по умолчанию.
// Лимиты шагов и времени ужесточает runner; здесь объединяются флаги и списки.
func (c *EngineConfig) Effective(req domain.ExecutionOptions) domain.ExecutionOptions {
	out := req
	out.AllowSelfLoopEdges = req.AllowSelfLoopEdges || c.AllowSelfLoopEdges

	if len(c.ContinueOnErrorNodeIDs) > 0 {
		seen := make(map[string]bool, len(req.ContinueOnErrorNodeIDs))
		ids := make([]string, 0, len(req.ContinueOnErrorNodeIDs)+len(c.ContinueOnErrorNodeIDs))
		for _, id := range append(append([]string{}, req.ContinueOnErrorNodeIDs...), c.ContinueOnErrorNodeIDs...) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		out.ContinueOnErrorNodeIDs = ids
	}
	return out
}

// GetEnv возвращает значение переменной окружения или fallback.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
