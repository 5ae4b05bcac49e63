package cancel

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrRunNotActive — run не выполняется в этом процессе.
var ErrRunNotActive = errors.New("run is not active")

// Registry — активные run'ы процесса.
type Registry struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]context.CancelFunc)}
}

// Track регистрирует run и возвращает его контекст.
// release снимает регистрацию и освобождает контекст; вызывать обязательно.
func (r *Registry) Track(parent context.Context, runID string) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.runs[runID] = cancel
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		delete(r.runs, runID)
		r.mu.Unlock()
		cancel()
	}
}

// Cancel отменяет run. Возвращает false, если run не активен.
func (r *Registry) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.runs[runID]
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// CancelRun отменяет локальный run; ErrRunNotActive, если его нет.
func (r *Registry) CancelRun(_ context.Context, runID string) error {
	if !r.Cancel(runID) {
		return ErrRunNotActive
	}
	return nil
}

// IsActive проверяет, выполняется ли run в этом процессе.
func (r *Registry) IsActive(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[runID]
	return ok
}

// Active возвращает ID активных run'ов (отсортированы).
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
