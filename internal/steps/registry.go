package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/store"
)

// Registry — реестр исполнителей по типам узлов.
//
// Заполняется при старте, затем только читается. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.NodeType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.NodeType]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными исполнителями.
func DefaultRegistry(docs store.DocumentStore) *Registry {
	r := NewRegistry()

	r.Register(NewStartExecutor())
	r.Register(NewConditionExecutor())
	r.Register(NewInsertExecutor(docs))
	r.Register(NewFindExecutor(docs))

	return r
}

// Register регистрирует исполнитель.
// Если исполнитель для этого типа уже есть, он будет заменён.
func (r *Registry) Register(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Type()] = exec
}

// Get возвращает исполнитель по типу.
// Возвращает ErrExecutorNotFound, если исполнитель не зарегистрирован.
func (r *Registry) Get(t domain.NodeType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[t]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, t)
	}
	return exec, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(t domain.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[t]
	return exists
}

// Types возвращает зарегистрированные типы (отсортированы).
func (r *Registry) Types() []domain.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count возвращает количество зарегистрированных исполнителей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// Unregister удаляет исполнитель из реестра.
func (r *Registry) Unregister(t domain.NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, t)
}
