package repo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/testutil"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := testutil.PostgresDSN(t)
	t.Setenv("DB_URL", dsn)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return pool
}

func sampleWorkflow() *domain.StoredWorkflow {
	return &domain.StoredWorkflow{
		ID:   uuid.NewString(),
		Name: "sample",
		Document: domain.Workflow{
			Name: "sample",
			Nodes: []domain.NodeDef{{
				ID: "s", Type: domain.NodeTypeStart,
				Config: map[string]any{"initialData": map[string]any{"x": float64(1)}},
			}},
			Edges: []domain.Edge{},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestWorkflowRepo_CRUD(t *testing.T) {
	pool := newTestPool(t)
	repo := NewWorkflowRepo(pool)
	ctx := context.Background()

	wf := sampleWorkflow()
	if err := repo.Create(ctx, wf); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, wf); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	got, err := repo.GetByID(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "sample" || len(got.Document.Nodes) != 1 || got.Document.Nodes[0].Type != domain.NodeTypeStart {
		t.Errorf("got = %+v", got)
	}

	list, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) == 0 {
		t.Error("List() returned nothing")
	}

	if err := repo.Delete(ctx, wf.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, wf.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRunRepo_Lifecycle(t *testing.T) {
	pool := newTestPool(t)
	workflows := NewWorkflowRepo(pool)
	runs := NewRunRepo(pool)
	ctx := context.Background()

	wf := sampleWorkflow()
	if err := workflows.Create(ctx, wf); err != nil {
		t.Fatalf("Create workflow error = %v", err)
	}

	run := domain.NewRun(wf.ID, map[string]any{"x": float64(2)}, domain.ExecutionOptions{MaxSteps: 5})
	if err := runs.Create(ctx, run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pending, err := runs.ListPending(ctx, 100)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == run.ID {
			found = true
		}
	}
	if !found {
		t.Error("new run should be pending")
	}

	if err := runs.ClaimPending(ctx, run); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if err := runs.ClaimPending(ctx, run); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second ClaimPending() error = %v, want ErrInvalidState", err)
	}

	var scope domain.Values
	scope.Set("x", float64(2))
	run.Finish(&domain.ExecutionResponse{
		Status:     domain.RunStatusCompleted,
		Trace:      []domain.TraceEntry{{Step: 1, NodeID: "s", Type: domain.NodeTypeStart}},
		FinalScope: scope,
		Steps:      1,
	})
	if err := runs.Finish(ctx, run); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	// второй итог не перезаписывает первый
	if err := runs.Finish(ctx, run); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Finish() error = %v, want ErrInvalidState", err)
	}

	got, err := runs.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.RunStatusCompleted || got.Result == nil || got.Result.Steps != 1 {
		t.Errorf("got = %+v", got)
	}
	if got.Options.MaxSteps != 5 || got.Inputs["x"] != float64(2) {
		t.Errorf("options/inputs = %+v / %v", got.Options, got.Inputs)
	}
	if v, _ := got.Result.FinalScope.Get("x"); v != float64(2) {
		t.Errorf("final scope x = %v", v)
	}

	list, err := runs.List(ctx, RunFilter{WorkflowID: wf.ID, Status: domain.RunStatusCompleted})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() = %d runs, want 1", len(list))
	}

	if _, err := runs.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(unknown) error = %v", err)
	}
}

func TestRunRepo_FailStale(t *testing.T) {
	pool := newTestPool(t)
	runs := NewRunRepo(pool)
	ctx := context.Background()

	stale := domain.NewRun("", nil, domain.ExecutionOptions{})
	fresh := domain.NewRun("", nil, domain.ExecutionOptions{})
	for _, run := range []*domain.Run{stale, fresh} {
		if err := runs.Create(ctx, run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := runs.ClaimPending(ctx, stale); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}

	// fresh остаётся pending и не затрагивается
	failed, err := runs.FailStale(ctx, time.Now().Add(time.Minute), "InternalError: lost", 1000)
	if err != nil {
		t.Fatalf("FailStale() error = %v", err)
	}
	ids := make(map[uuid.UUID]domain.Run, len(failed))
	for _, r := range failed {
		ids[r.ID] = r
	}
	got, ok := ids[stale.ID]
	if !ok {
		t.Fatal("stale run not returned")
	}
	if got.Status != domain.RunStatusFailed || got.Error != "InternalError: lost" || got.FinishedAt == nil {
		t.Errorf("stale run = %+v", got)
	}
	if _, ok := ids[fresh.ID]; ok {
		t.Error("pending run must not be failed")
	}

	// повторный вызов не возвращает уже завершённый run
	again, err := runs.FailStale(ctx, time.Now().Add(time.Minute), "InternalError: lost", 1000)
	if err != nil {
		t.Fatalf("FailStale() error = %v", err)
	}
	for _, r := range again {
		if r.ID == stale.ID {
			t.Error("run failed twice")
		}
	}
}

func TestRunRepo_CancelPending(t *testing.T) {
	pool := newTestPool(t)
	runs := NewRunRepo(pool)
	ctx := context.Background()

	pending := domain.NewRun("", nil, domain.ExecutionOptions{})
	claimed := domain.NewRun("", nil, domain.ExecutionOptions{})
	for _, run := range []*domain.Run{pending, claimed} {
		if err := runs.Create(ctx, run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	pending.MarkCancelled()
	if err := runs.CancelPending(ctx, pending); err != nil {
		t.Fatalf("CancelPending() error = %v", err)
	}
	got, err := runs.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.RunStatusAborted || got.FinishedAt == nil {
		t.Errorf("cancelled run = %+v", got)
	}

	// отменённый run воркер уже не заберёт
	if err := runs.ClaimPending(ctx, got); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ClaimPending() after cancel error = %v, want ErrInvalidState", err)
	}

	// воркер успел забрать run: отмена не должна затирать running
	if err := runs.ClaimPending(ctx, claimed); err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	stale := *claimed
	stale.Status = domain.RunStatusPending
	stale.MarkCancelled()
	if err := runs.CancelPending(ctx, &stale); !errors.Is(err, ErrInvalidState) {
		t.Errorf("CancelPending() of running run error = %v, want ErrInvalidState", err)
	}
	got, err = runs.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.RunStatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
}

func TestNewPool_BadDSN(t *testing.T) {
	if os.Getenv("TEST_DB_URL") != "" {
		t.Skip("external database configured")
	}
	t.Setenv("DB_URL", "://bad")
	if _, err := NewPool(context.Background()); err == nil {
		t.Error("expected error for bad DSN")
	}
}
