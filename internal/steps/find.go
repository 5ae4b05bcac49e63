package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/store"
)

// FindExecutor ищет документы в коллекции.
type FindExecutor struct {
	docs store.DocumentStore
}

// NewFindExecutor создаёт исполнитель узла mongodb_find.
func NewFindExecutor(docs store.DocumentStore) *FindExecutor {
	return &FindExecutor{docs: docs}
}

// Type реализует Executor.
func (e *FindExecutor) Type() domain.NodeType {
	return domain.NodeTypeMongoFind
}

// Execute реализует Executor.
//
// Результаты записываются в scope под outputKey (массив, возможно пустой)
// и outputKey+"Count" (количество).
func (e *FindExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*domain.FindConfig](req)
	if err != nil {
		return nil, err
	}

	filter, warnings := engine.ResolveMap(cfg.Filter, req.Scope)

	docs, err := e.docs.Find(ctx, cfg.Database, cfg.Collection, filter, cfg.Limit)
	if err != nil {
		return nil, &NodeError{
			Kind:    KindStoreError,
			NodeID:  req.NodeID,
			Message: fmt.Sprintf("find in %s.%s: %v", cfg.Database, cfg.Collection, err),
			Err:     err,
		}
	}

	results := make([]any, 0, len(docs))
	for _, d := range docs {
		results = append(results, d)
	}

	return &Result{
		OutputLabel: domain.LabelDefault,
		Data: map[string]any{
			"filter": filter,
			"count":  len(results),
		},
		Mutations: engine.Delta{}.
			Set(cfg.OutputKey, results).
			Set(cfg.CountKey(), len(results)),
		Warnings: warnings,
	}, nil
}
