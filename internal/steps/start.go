package steps

import (
	"context"

	"github.com/shaiso/Graphflow/internal/domain"
)

// StartExecutor засевает scope значениями initialData.
type StartExecutor struct{}

// NewStartExecutor создаёт исполнитель узла start.
func NewStartExecutor() *StartExecutor {
	return &StartExecutor{}
}

// Type реализует Executor.
func (e *StartExecutor) Type() domain.NodeType {
	return domain.NodeTypeStart
}

// Execute реализует Executor.
//
// Значения initialData записываются в scope как есть (без разрешения шаблонов),
// ключи — в порядке документа.
func (e *StartExecutor) Execute(_ context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*domain.StartConfig](req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OutputLabel: domain.LabelDefault,
		Data:        cfg.InitialData.Clone(),
	}
	for _, k := range cfg.InitialData.Keys() {
		v, _ := cfg.InitialData.Get(k)
		res.Mutations = res.Mutations.Set(k, v)
	}
	return res, nil
}
