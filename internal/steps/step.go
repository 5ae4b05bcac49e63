package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
)

// Executor — исполнитель узлов одного типа.
type Executor interface {
	// Type возвращает тип узла.
	Type() domain.NodeType

	// Execute выполняет узел.
	// Изменения scope возвращаются в Result.Mutations.
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Request — входные данные исполнителя.
type Request struct {
	// NodeID — идентификатор узла.
	NodeID string

	// Config — типизированный конфиг (шаблоны ещё не разрешены).
	Config domain.NodeConfig

	// Scope — текущее состояние scope.
	Scope engine.ScopeReader
}

// Result — результат выполнения узла.
type Result struct {
	// OutputLabel — метка, по которой walker выберет следующее ребро.
	OutputLabel string

	// Data — данные для записи в trace.
	Data any

	// Mutations — изменения scope.
	Mutations engine.Delta

	// Warnings — предупреждения (например, неразрешённые плейсхолдеры).
	Warnings []string
}

// configAs приводит конфиг запроса к ожидаемому типу.
func configAs[T domain.NodeConfig](req *Request) (T, error) {
	cfg, ok := req.Config.(T)
	if !ok {
		var zero T
		return zero, &NodeError{
			Kind:    KindBadConfig,
			NodeID:  req.NodeID,
			Message: fmt.Sprintf("expected %T config, got %T", zero, req.Config),
			Err:     ErrConfigMismatch,
		}
	}
	return cfg, nil
}
