package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shaiso/Graphflow/internal/domain"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.MaxSteps != DefaultMaxSteps || cfg.TimeBudget() != 30*time.Second || cfg.StoreTimeout() != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParse_PartialYAML(t *testing.T) {
	cfg, err := Parse([]byte(`
max_steps: 50
allow_self_loop_edges: true
continue_on_error_node_ids: [notify]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MaxSteps != 50 {
		t.Errorf("MaxSteps = %d", cfg.MaxSteps)
	}
	if !cfg.AllowSelfLoopEdges {
		t.Error("AllowSelfLoopEdges should be true")
	}
	if len(cfg.ContinueOnErrorNodeIDs) != 1 || cfg.ContinueOnErrorNodeIDs[0] != "notify" {
		t.Errorf("ContinueOnErrorNodeIDs = %v", cfg.ContinueOnErrorNodeIDs)
	}
	// Незаданное поле сохраняет значение по умолчанию
	if cfg.TimeBudgetMs != DefaultTimeBudgetMs {
		t.Errorf("TimeBudgetMs = %d", cfg.TimeBudgetMs)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative steps", "max_steps: -1"},
		{"zero budget", "time_budget_ms: 0"},
		{"not yaml", "max_steps: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("time_budget_ms: 1500\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TimeBudget() != 1500*time.Millisecond {
		t.Errorf("TimeBudget = %s", cfg.TimeBudget())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should be an error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMaxSteps:       "5",
		EnvTimeBudgetMs:   "200",
		EnvAllowSelfLoops: "true",
		EnvStoreTimeoutMs: "50",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.MaxSteps != 5 || cfg.TimeBudgetMs != 200 || !cfg.AllowSelfLoopEdges || cfg.StoreTimeoutMs != 50 {
		t.Errorf("cfg = %+v", cfg)
	}

	env[EnvMaxSteps] = "many"
	if err := Default().ApplyEnv(lookup); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestEffective(t *testing.T) {
	cfg := Default()
	cfg.AllowSelfLoopEdges = true
	cfg.ContinueOnErrorNodeIDs = []string{"ins", "audit"}

	got := cfg.Effective(domain.ExecutionOptions{MaxSteps: 3, ContinueOnErrorNodeIDs: []string{"find", "ins"}})

	if !got.AllowSelfLoopEdges || got.MaxSteps != 3 {
		t.Errorf("got = %+v", got)
	}
	want := []string{"find", "ins", "audit"}
	if !reflect.DeepEqual(got.ContinueOnErrorNodeIDs, want) {
		t.Errorf("continueOnErrorNodeIds = %v, want %v", got.ContinueOnErrorNodeIDs, want)
	}

	// без серверных списков запрос не меняется
	plain := Default().Effective(domain.ExecutionOptions{ContinueOnErrorNodeIDs: []string{"x"}})
	if !reflect.DeepEqual(plain.ContinueOnErrorNodeIDs, []string{"x"}) || plain.AllowSelfLoopEdges {
		t.Errorf("plain = %+v", plain)
	}
}
