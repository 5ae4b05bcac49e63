package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Graphflow/internal/domain"
)

// ValidateOptions — параметры валидации.
type ValidateOptions struct {
	// AllowSelfLoopEdges разрешает рёбра из узла в самого себя.
	AllowSelfLoopEdges bool
}

// Validate проверяет документ и строит неизменяемый Workflow.
//
// Порядок проверок:
//  1. непустой документ, непустые и уникальные ID узлов
//  2. известный тип и конфиг по схеме типа (с подстановкой значений по умолчанию)
//  3. ровно один start
//  4. рёбра ссылаются на существующие узлы; self-loop только если разрешён
//  5. метки рёбер допустимы для типа источника
//  6. из одного узла нет двух рёбер с одной меткой
//
// Недостижимые из start узлы не являются ошибкой: они попадают в Warnings.
func Validate(doc *domain.Workflow, opts ValidateOptions) (*Workflow, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, NewValidationError(KindEmptyDocument, "", "nodes",
			"workflow has no nodes", ErrEmptyDocument)
	}

	wf := newWorkflow(doc.ID, doc.Name)
	startCount := 0

	for i := range doc.Nodes {
		def := &doc.Nodes[i]

		if def.ID == "" {
			return nil, NewValidationError(KindBadConfig, "", fmt.Sprintf("nodes[%d].id", i),
				"node has empty ID", ErrBadConfig)
		}
		if _, dup := wf.index[def.ID]; dup {
			return nil, NewValidationError(KindDuplicateID, def.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", def.ID), ErrDuplicateID)
		}

		node, err := validateNode(def)
		if err != nil {
			return nil, err
		}
		if node.Type == domain.NodeTypeStart {
			startCount++
		}
		wf.addNode(node)
	}

	switch {
	case startCount == 0:
		return nil, NewValidationError(KindMissingStart, "", "nodes",
			"workflow has no start node", ErrMissingStart)
	case startCount > 1:
		return nil, NewValidationError(KindMultipleStart, "", "nodes",
			fmt.Sprintf("workflow has %d start nodes, want exactly one", startCount), ErrMultipleStart)
	}

	seen := make(map[string]bool, len(doc.Edges))
	for i, e := range doc.Edges {
		edge := domain.Edge{From: e.From, To: e.To, Output: e.Label()}
		field := fmt.Sprintf("edges[%d]", i)

		from, ok := wf.index[edge.From]
		if !ok {
			return nil, NewValidationError(KindDanglingEdge, edge.From, field+".from",
				fmt.Sprintf("edge source %q does not exist", edge.From), ErrDanglingEdge)
		}
		if _, ok := wf.index[edge.To]; !ok {
			return nil, NewValidationError(KindDanglingEdge, edge.From, field+".to",
				fmt.Sprintf("edge target %q does not exist", edge.To), ErrDanglingEdge)
		}
		if edge.From == edge.To && !opts.AllowSelfLoopEdges {
			return nil, NewValidationError(KindSelfLoop, edge.From, field,
				"edge points back to its source node", ErrSelfLoop)
		}
		if !from.Type.AllowsLabel(edge.Output) {
			return nil, NewValidationError(KindBadEdgeLabel, edge.From, field+".output",
				fmt.Sprintf("label %q is not allowed for %s node (allowed: %v)",
					edge.Output, from.Type, from.Type.AllowedLabels()), ErrBadEdgeLabel)
		}

		key := edge.From + "\x00" + edge.Output
		if seen[key] {
			return nil, NewValidationError(KindAmbiguousEdge, edge.From, field+".output",
				fmt.Sprintf("more than one edge with label %q", edge.Output), ErrAmbiguousEdge)
		}
		seen[key] = true

		wf.addEdge(edge)
	}

	reachable := wf.Reachable()
	for _, n := range wf.nodes {
		if !reachable[n.ID] {
			wf.warnings = append(wf.warnings, fmt.Sprintf("node %s is unreachable from start", n.ID))
		}
	}

	return wf, nil
}

// validateNode проверяет тип и конфиг узла.
func validateNode(def *domain.NodeDef) (*Node, error) {
	if !def.Type.IsKnown() {
		return nil, NewValidationError(KindBadConfig, def.ID, "type",
			fmt.Sprintf("unknown node type: %q", def.Type), ErrBadConfig)
	}

	cfg, raw, err := normalizeConfig(*def)
	if err != nil {
		return nil, NewValidationError(KindBadConfig, def.ID, "config",
			fmt.Sprintf("config is not JSON-serializable: %v", err), ErrBadConfig)
	}

	if field, msg, ok := checkSchema(def.Type, cfg); !ok {
		return nil, NewValidationError(KindBadConfig, def.ID, field, msg, ErrBadConfig)
	}

	typed, err := decodeConfig(def.Type, raw)
	if err != nil {
		return nil, NewValidationError(KindBadConfig, def.ID, "config", err.Error(), ErrBadConfig)
	}

	return &Node{ID: def.ID, Type: def.Type, Config: typed}, nil
}

// findConfigJSON различает отсутствующие и нулевые значения.
type findConfigJSON struct {
	Database   string         `json:"database"`
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`
	Limit      *int64         `json:"limit"`
	OutputKey  *string        `json:"outputKey"`
}

// decodeConfig декодирует нормализованный конфиг в типизированную структуру
// и подставляет значения по умолчанию.
func decodeConfig(t domain.NodeType, raw []byte) (domain.NodeConfig, error) {
	switch t {
	case domain.NodeTypeStart:
		var cfg domain.StartConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case domain.NodeTypeCondition:
		var cfg domain.ConditionConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case domain.NodeTypeMongoInsert:
		var cfg domain.InsertConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case domain.NodeTypeMongoFind:
		var in findConfigJSON
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		cfg := &domain.FindConfig{
			Database:   in.Database,
			Collection: in.Collection,
			Filter:     in.Filter,
			Limit:      domain.DefaultFindLimit,
			OutputKey:  domain.DefaultOutputKey,
		}
		if in.Limit != nil {
			cfg.Limit = *in.Limit
		}
		if in.OutputKey != nil {
			cfg.OutputKey = *in.OutputKey
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown node type: %q", t)
	}
}
