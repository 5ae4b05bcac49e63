package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Graphflow/internal/domain"
	"github.com/shaiso/Graphflow/internal/engine"
	"github.com/shaiso/Graphflow/internal/store"
)

// InsertExecutor вставляет документ в коллекцию.
type InsertExecutor struct {
	docs store.DocumentStore
}

// NewInsertExecutor создаёт исполнитель узла mongodb_insert.
func NewInsertExecutor(docs store.DocumentStore) *InsertExecutor {
	return &InsertExecutor{docs: docs}
}

// Type реализует Executor.
func (e *InsertExecutor) Type() domain.NodeType {
	return domain.NodeTypeMongoInsert
}

// Execute реализует Executor.
//
// Шаблоны разрешаются во всех строках документа. ID вставленного документа
// записывается в scope под ключом lastInsertedId.
func (e *InsertExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := configAs[*domain.InsertConfig](req)
	if err != nil {
		return nil, err
	}

	doc, warnings := engine.ResolveMap(cfg.Document, req.Scope)

	res, err := e.docs.InsertOne(ctx, cfg.Database, cfg.Collection, doc)
	if err != nil {
		return nil, &NodeError{
			Kind:    KindStoreError,
			NodeID:  req.NodeID,
			Message: fmt.Sprintf("insert into %s.%s: %v", cfg.Database, cfg.Collection, err),
			Err:     err,
		}
	}

	return &Result{
		OutputLabel: domain.LabelDefault,
		Data: map[string]any{
			"insertedId": res.InsertedID,
			"document":   doc,
		},
		Mutations: engine.Delta{}.Set(domain.LastInsertedIDKey, res.InsertedID),
		Warnings:  warnings,
	}, nil
}
