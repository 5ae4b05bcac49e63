package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/mq"
	"github.com/shaiso/Graphflow/internal/repo"
	"github.com/shaiso/Graphflow/internal/runner"
	"github.com/shaiso/Graphflow/internal/steps"
	"github.com/shaiso/Graphflow/internal/store"
)

// --- fakes ---

type fakeRuns struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]domain.Run
	updates int
	getErr  error

	// afterClaim вызывается сразу после перехода run в running.
	afterClaim func(id uuid.UUID)
}

func newFakeRuns(runs ...*domain.Run) *fakeRuns {
	f := &fakeRuns{runs: make(map[uuid.UUID]domain.Run)}
	for _, r := range runs {
		f.runs[r.ID] = *r
	}
	return f
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRuns) ListPending(context.Context, int) ([]domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Run
	for _, r := range f.runs {
		if r.Status == domain.RunStatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuns) ClaimPending(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	stored := f.runs[run.ID]
	if stored.Status != domain.RunStatusPending {
		f.mu.Unlock()
		return repo.ErrInvalidState
	}
	now := time.Now()
	stored.Status = domain.RunStatusRunning
	stored.StartedAt = &now
	f.runs[run.ID] = stored
	*run = stored
	hook := f.afterClaim
	f.mu.Unlock()

	if hook != nil {
		hook(run.ID)
	}
	return nil
}

func (f *fakeRuns) Finish(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runs[run.ID].Status != domain.RunStatusRunning {
		return repo.ErrInvalidState
	}
	f.updates++
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRuns) setStatus(id uuid.UUID, status domain.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := f.runs[id]
	run.Status = status
	f.runs[id] = run
}

func (f *fakeRuns) get(id uuid.UUID) domain.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

type fakeWorkflows map[string]*domain.StoredWorkflow

func (f fakeWorkflows) GetByID(_ context.Context, id string) (*domain.StoredWorkflow, error) {
	wf, ok := f[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

// gateExecutor задерживает узел, пока тест не откроет release.
type gateExecutor struct {
	steps.Executor
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate(inner steps.Executor) *gateExecutor {
	return &gateExecutor{Executor: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateExecutor) Execute(ctx context.Context, req *steps.Request) (*steps.Result, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Executor.Execute(ctx, req)
}

type recordingPublisher struct {
	mu       sync.Mutex
	finished []mq.RunFinishedPayload
}

func (p *recordingPublisher) PublishRunFinished(_ context.Context, payload mq.RunFinishedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, payload)
	return nil
}

// --- helpers ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// insertWorkflow — start → insert в db.people.
func insertWorkflow() *domain.StoredWorkflow {
	return &domain.StoredWorkflow{
		ID:   "wf-insert",
		Name: "insert person",
		Document: domain.Workflow{
			ID:   "wf-insert",
			Name: "insert person",
			Nodes: []domain.NodeDef{
				{ID: "s", Type: domain.NodeTypeStart, Config: map[string]any{"initialData": map[string]any{"name": "Ann"}}},
				{ID: "ins", Type: domain.NodeTypeMongoInsert, Config: map[string]any{
					"database": "db", "collection": "people",
					"document": map[string]any{"name": "{{name}}"},
				}},
			},
			Edges: []domain.Edge{{From: "s", To: "ins"}},
		},
	}
}

func newTestWorker(t *testing.T, runs *fakeRuns, wfs fakeWorkflows, docs store.DocumentStore, pub FinishedPublisher) *Worker {
	t.Helper()
	return newTestWorkerWithRunner(runs, wfs, pub, runner.Config{Registry: steps.DefaultRegistry(docs)})
}

func newTestWorkerWithRunner(runs *fakeRuns, wfs fakeWorkflows, pub FinishedPublisher, rc runner.Config) *Worker {
	rc.Logger = quietLogger()
	return New(Config{
		Runs:         runs,
		Workflows:    wfs,
		Runner:       runner.New(rc),
		Publisher:    pub,
		Logger:       quietLogger(),
		PollInterval: 10 * time.Millisecond,
	})
}

// --- tests ---

func TestProcessRun_Completes(t *testing.T) {
	docs := store.NewMemoryStore()
	run := domain.NewRun("wf-insert", map[string]any{"name": "Bob"}, domain.ExecutionOptions{})
	runs := newFakeRuns(run)
	pub := &recordingPublisher{}
	w := newTestWorker(t, runs, fakeWorkflows{"wf-insert": insertWorkflow()}, docs, pub)

	if err := w.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}

	got := runs.get(run.ID)
	if got.Status != domain.RunStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", got.Status, got.Error)
	}
	if got.Result == nil || got.Result.Steps != 2 {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}

	// inputs мёржатся поверх initialData
	found, err := docs.Find(context.Background(), "db", "people", map[string]any{"name": "Bob"}, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected 1 inserted document, got %d", len(found))
	}

	if len(pub.finished) != 1 || pub.finished[0].Status != "completed" || pub.finished[0].Steps != 2 {
		t.Errorf("unexpected run.finished: %+v", pub.finished)
	}
	if w.Cancels().IsActive(run.ID.String()) {
		t.Error("run should be released from cancel registry")
	}
}

func TestProcessRun_StoreFailure(t *testing.T) {
	docs := store.NewMemoryStore()
	docs.FailWith(store.ErrUnavailable)
	run := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	runs := newFakeRuns(run)
	pub := &recordingPublisher{}
	w := newTestWorker(t, runs, fakeWorkflows{"wf-insert": insertWorkflow()}, docs, pub)

	if err := w.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}

	got := runs.get(run.ID)
	if got.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Result.Error == nil || got.Result.Error.Reason != domain.ReasonStoreError {
		t.Errorf("unexpected error: %+v", got.Result.Error)
	}
	if pub.finished[0].Reason != string(domain.ReasonStoreError) {
		t.Errorf("reason = %q, want StoreError", pub.finished[0].Reason)
	}
}

func TestProcessRun_Rejected(t *testing.T) {
	invalid := &domain.StoredWorkflow{
		ID:       "wf-bad",
		Document: domain.Workflow{ID: "wf-bad", Nodes: []domain.NodeDef{{ID: "c", Type: domain.NodeTypeCondition, Config: map[string]any{}}}},
	}

	tests := []struct {
		name       string
		workflowID string
	}{
		{name: "missing workflow", workflowID: "wf-gone"},
		{name: "invalid document", workflowID: "wf-bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := domain.NewRun(tt.workflowID, nil, domain.ExecutionOptions{})
			runs := newFakeRuns(run)
			pub := &recordingPublisher{}
			w := newTestWorker(t, runs, fakeWorkflows{"wf-bad": invalid}, store.NewMemoryStore(), pub)

			if err := w.ProcessRun(context.Background(), run.ID); err != nil {
				t.Fatalf("ProcessRun: %v", err)
			}

			got := runs.get(run.ID)
			if got.Status != domain.RunStatusFailed || got.Result != nil {
				t.Errorf("status = %s, result = %+v", got.Status, got.Result)
			}
			if len(pub.finished) != 1 || pub.finished[0].Reason != string(domain.ReasonBadConfig) {
				t.Errorf("unexpected run.finished: %+v", pub.finished)
			}
		})
	}
}

func TestProcessRun_Skips(t *testing.T) {
	done := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	done.Status = domain.RunStatusCompleted
	runs := newFakeRuns(done)
	w := newTestWorker(t, runs, fakeWorkflows{}, store.NewMemoryStore(), nil)

	if err := w.ProcessRun(context.Background(), done.ID); !errors.Is(err, ErrRunNotPending) {
		t.Errorf("completed run: err = %v, want ErrRunNotPending", err)
	}
	if err := w.ProcessRun(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("unknown run: err = %v, want ErrRunNotFound", err)
	}
	if runs.updates != 0 {
		t.Errorf("skipped runs must not be updated, got %d updates", runs.updates)
	}
}

func TestProcessRun_Cancelled(t *testing.T) {
	// condition → сам себя; без отмены цикл упрётся в лимит шагов
	loop := &domain.StoredWorkflow{
		ID: "wf-loop",
		Document: domain.Workflow{
			ID: "wf-loop",
			Nodes: []domain.NodeDef{
				{ID: "s", Type: domain.NodeTypeStart, Config: map[string]any{"initialData": map[string]any{"x": 1}}},
				{ID: "c", Type: domain.NodeTypeCondition, Config: map[string]any{"lhs": "{{x}}", "operator": "==", "rhs": "1"}},
			},
			Edges: []domain.Edge{{From: "s", To: "c"}, {From: "c", To: "c", Output: "true"}},
		},
	}
	run := domain.NewRun("wf-loop", nil, domain.ExecutionOptions{AllowSelfLoopEdges: true, MaxSteps: 1 << 30, TimeBudgetMs: 60_000})
	runs := newFakeRuns(run)
	w := newTestWorkerWithRunner(runs, fakeWorkflows{"wf-loop": loop}, nil, runner.Config{
		Registry: steps.DefaultRegistry(store.NewMemoryStore()),
		MaxSteps: 1 << 30,
	})

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if w.Cancels().Cancel(run.ID.String()) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	if err := w.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}

	got := runs.get(run.ID)
	if got.Status != domain.RunStatusAborted {
		t.Fatalf("status = %s, want aborted", got.Status)
	}
	if got.Result.Error.Reason != domain.ReasonCancelled {
		t.Errorf("reason = %s, want Cancelled", got.Result.Error.Reason)
	}
}

func TestProcessRun_CancelRightAfterClaim(t *testing.T) {
	docs := store.NewMemoryStore()
	run := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	runs := newFakeRuns(run)
	pub := &recordingPublisher{}
	w := newTestWorker(t, runs, fakeWorkflows{"wf-insert": insertWorkflow()}, docs, pub)

	// отмена приходит, как только run стал running
	delivered := false
	runs.afterClaim = func(id uuid.UUID) {
		delivered = w.Cancels().Cancel(id.String())
	}

	if err := w.ProcessRun(context.Background(), run.ID); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}
	if !delivered {
		t.Fatal("claimed run must already be in the cancel registry")
	}

	got := runs.get(run.ID)
	if got.Status != domain.RunStatusAborted || got.Result.Error.Reason != domain.ReasonCancelled {
		t.Fatalf("status = %s, result = %+v, want aborted/Cancelled", got.Status, got.Result)
	}
	found, err := docs.Find(context.Background(), "db", "people", map[string]any{}, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("cancelled run must not insert, got %d documents", len(found))
	}
	if len(pub.finished) != 1 || pub.finished[0].Reason != string(domain.ReasonCancelled) {
		t.Errorf("unexpected run.finished: %+v", pub.finished)
	}
}

func TestProcessRun_ShutdownDrainsRun(t *testing.T) {
	docs := store.NewMemoryStore()
	run := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	runs := newFakeRuns(run)

	registry := steps.DefaultRegistry(docs)
	inner, err := registry.Get(domain.NodeTypeMongoInsert)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	gate := newGate(inner)
	registry.Register(gate)
	w := newTestWorkerWithRunner(runs, fakeWorkflows{"wf-insert": insertWorkflow()}, nil, runner.Config{Registry: registry})

	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.ProcessRun(ctx, run.ID) }()

	<-gate.entered
	// остановка воркера посреди узла
	stop()
	close(gate.release)

	if err := <-errCh; err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}
	if got := runs.get(run.ID); got.Status != domain.RunStatusCompleted {
		t.Errorf("status = %s (%s), want completed", got.Status, got.Error)
	}
}

func TestProcessRun_FinalizedElsewhere(t *testing.T) {
	docs := store.NewMemoryStore()
	run := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	runs := newFakeRuns(run)
	pub := &recordingPublisher{}

	registry := steps.DefaultRegistry(docs)
	inner, err := registry.Get(domain.NodeTypeMongoInsert)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	gate := newGate(inner)
	registry.Register(gate)
	w := newTestWorkerWithRunner(runs, fakeWorkflows{"wf-insert": insertWorkflow()}, pub, runner.Config{Registry: registry})

	errCh := make(chan error, 1)
	go func() { errCh <- w.ProcessRun(context.Background(), run.ID) }()

	<-gate.entered
	// оркестратор признал run потерянным
	runs.setStatus(run.ID, domain.RunStatusFailed)
	close(gate.release)

	if err := <-errCh; err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}
	if got := runs.get(run.ID); got.Status != domain.RunStatusFailed {
		t.Errorf("status = %s, want failed to be kept", got.Status)
	}
	if len(pub.finished) != 0 {
		t.Errorf("run.finished published twice: %+v", pub.finished)
	}
}

func TestWorker_PollPicksUpPending(t *testing.T) {
	run := domain.NewRun("wf-insert", nil, domain.ExecutionOptions{})
	runs := newFakeRuns(run)
	w := newTestWorker(t, runs, fakeWorkflows{"wf-insert": insertWorkflow()}, store.NewMemoryStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runs.get(run.ID).Status.IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := runs.get(run.ID).Status; got != domain.RunStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestHandleRunPending(t *testing.T) {
	w := newTestWorker(t, newFakeRuns(), fakeWorkflows{}, store.NewMemoryStore(), nil)

	// неизвестный run подтверждается без ошибки
	msg := mq.NewMessage(mq.MessageTypeRunPending, mq.RunPendingPayload{RunID: uuid.New()})
	if err := w.handleRunPending(context.Background(), msg); err != nil {
		t.Errorf("unknown run: %v", err)
	}

	// битый payload уходит в DLQ
	bad := &mq.Message{Type: mq.MessageTypeRunPending, Payload: "oops"}
	if err := w.handleRunPending(context.Background(), bad); !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("bad payload: err = %v, want ErrPermanent", err)
	}

	// временная ошибка БД возвращается для requeue
	runs := newFakeRuns()
	runs.getErr = errors.New("connection refused")
	w = newTestWorker(t, runs, fakeWorkflows{}, store.NewMemoryStore(), nil)
	if err := w.handleRunPending(context.Background(), msg); err == nil || errors.Is(err, mq.ErrPermanent) {
		t.Errorf("transient error: err = %v", err)
	}
}
