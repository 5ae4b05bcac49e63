package engine

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/shaiso/Graphflow/internal/domain"
)

func startNode(id string) domain.NodeDef {
	return domain.NodeDef{ID: id, Type: domain.NodeTypeStart, Config: map[string]any{
		"initialData": map[string]any{"x": 5},
	}}
}

func conditionNode(id string) domain.NodeDef {
	return domain.NodeDef{ID: id, Type: domain.NodeTypeCondition, Config: map[string]any{
		"lhs": "{{x}}", "operator": ">", "rhs": "3",
	}}
}

func findNode(id string, cfg map[string]any) domain.NodeDef {
	return domain.NodeDef{ID: id, Type: domain.NodeTypeMongoFind, Config: cfg}
}

func validDoc() *domain.Workflow {
	return &domain.Workflow{
		ID:   "wf-1",
		Name: "sample",
		Nodes: []domain.NodeDef{
			startNode("s"),
			conditionNode("c"),
			{ID: "ins", Type: domain.NodeTypeMongoInsert, Config: map[string]any{
				"database": "db", "collection": "users", "document": map[string]any{"n": "{{x}}"},
			}},
			findNode("f", map[string]any{"database": "db", "collection": "users", "filter": map[string]any{}}),
		},
		Edges: []domain.Edge{
			{From: "s", To: "c"},
			{From: "c", To: "ins", Output: "true"},
			{From: "c", To: "f", Output: "false"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	wf, err := Validate(validDoc(), ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if wf.Start().ID != "s" {
		t.Errorf("start = %s", wf.Start().ID)
	}
	if wf.Size() != 4 {
		t.Errorf("size = %d", wf.Size())
	}
	if len(wf.Warnings()) != 0 {
		t.Errorf("warnings = %v", wf.Warnings())
	}

	// Пустая метка нормализуется в default
	next := wf.Next("s", domain.LabelDefault)
	if len(next) != 1 || next[0].To != "c" {
		t.Errorf("next(s, default) = %v", next)
	}
}

func TestValidate_FindDefaults(t *testing.T) {
	wf, err := Validate(validDoc(), ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	n, _ := wf.Node("f")
	cfg, ok := n.Config.(*domain.FindConfig)
	if !ok {
		t.Fatalf("config type = %T", n.Config)
	}
	if cfg.Limit != domain.DefaultFindLimit {
		t.Errorf("limit = %d, want %d", cfg.Limit, domain.DefaultFindLimit)
	}
	if cfg.OutputKey != domain.DefaultOutputKey {
		t.Errorf("outputKey = %q", cfg.OutputKey)
	}
}

func TestValidate_StartWithoutInitialData(t *testing.T) {
	doc := &domain.Workflow{Nodes: []domain.NodeDef{{ID: "s", Type: domain.NodeTypeStart}}}

	wf, err := Validate(doc, ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	cfg := wf.Start().Config.(*domain.StartConfig)
	if cfg.InitialData.Len() != 0 {
		t.Errorf("initialData keys = %v, want none", cfg.InitialData.Keys())
	}
}

func TestValidate_InitialDataKeepsDocumentOrder(t *testing.T) {
	var doc domain.Workflow
	raw := `{"nodes": [{"id": "s", "type": "start", "config": {"initialData": {"zeta": 1, "alpha": 2, "mid": 3}}}]}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	wf, err := Validate(&doc, ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	cfg := wf.Start().Config.(*domain.StartConfig)
	if got := strings.Join(cfg.InitialData.Keys(), ","); got != "zeta,alpha,mid" {
		t.Errorf("keys = %s, want zeta,alpha,mid", got)
	}

	// Document() отдаёт ключи в том же порядке
	data, err := json.Marshal(wf.Document().Nodes[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `{"zeta":1,"alpha":2,"mid":3}`) {
		t.Errorf("document node = %s", data)
	}
}

func TestValidate_AllOperators(t *testing.T) {
	for _, op := range domain.Operators() {
		t.Run(string(op), func(t *testing.T) {
			doc := validDoc()
			doc.Nodes[1].Config["operator"] = string(op)
			if _, err := Validate(doc, ValidateOptions{}); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestValidate_YAMLIntegers(t *testing.T) {
	// Документ из YAML содержит int, а не float64
	doc := &domain.Workflow{Nodes: []domain.NodeDef{
		startNode("s"),
		findNode("f", map[string]any{"database": "db", "collection": "c", "filter": map[string]any{}, "limit": 3}),
	}, Edges: []domain.Edge{{From: "s", To: "f"}}}

	wf, err := Validate(doc, ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	n, _ := wf.Node("f")
	if got := n.Config.(*domain.FindConfig).Limit; got != 3 {
		t.Errorf("limit = %d, want 3", got)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(d *domain.Workflow)
		kind    ErrorKind
		sentErr error
		field   string
	}{
		{
			name:    "empty document",
			modify:  func(d *domain.Workflow) { d.Nodes = nil; d.Edges = nil },
			kind:    KindEmptyDocument,
			sentErr: ErrEmptyDocument,
		},
		{
			name: "missing start",
			modify: func(d *domain.Workflow) {
				d.Nodes = d.Nodes[1:]
				d.Edges = d.Edges[1:]
			},
			kind:    KindMissingStart,
			sentErr: ErrMissingStart,
		},
		{
			name:    "multiple start",
			modify:  func(d *domain.Workflow) { d.Nodes = append(d.Nodes, startNode("s2")) },
			kind:    KindMultipleStart,
			sentErr: ErrMultipleStart,
		},
		{
			name:    "duplicate id",
			modify:  func(d *domain.Workflow) { d.Nodes = append(d.Nodes, conditionNode("c")) },
			kind:    KindDuplicateID,
			sentErr: ErrDuplicateID,
		},
		{
			name:    "empty id",
			modify:  func(d *domain.Workflow) { d.Nodes[1].ID = "" },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
		},
		{
			name:    "unknown type",
			modify:  func(d *domain.Workflow) { d.Nodes[1].Type = "http" },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
			field:   "type",
		},
		{
			name:    "bad operator",
			modify:  func(d *domain.Workflow) { d.Nodes[1].Config["operator"] = "~=" },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
			field:   "operator",
		},
		{
			name:    "missing lhs",
			modify:  func(d *domain.Workflow) { delete(d.Nodes[1].Config, "lhs") },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
		},
		{
			name:    "negative limit",
			modify:  func(d *domain.Workflow) { d.Nodes[3].Config["limit"] = -1 },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
			field:   "limit",
		},
		{
			name:    "fractional limit",
			modify:  func(d *domain.Workflow) { d.Nodes[3].Config["limit"] = 2.5 },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
			field:   "limit",
		},
		{
			name:    "empty collection",
			modify:  func(d *domain.Workflow) { d.Nodes[2].Config["collection"] = "" },
			kind:    KindBadConfig,
			sentErr: ErrBadConfig,
			field:   "collection",
		},
		{
			name:    "dangling target",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "ins", To: "ghost"}) },
			kind:    KindDanglingEdge,
			sentErr: ErrDanglingEdge,
			field:   "edges[3].to",
		},
		{
			name:    "dangling source",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "ghost", To: "f"}) },
			kind:    KindDanglingEdge,
			sentErr: ErrDanglingEdge,
			field:   "edges[3].from",
		},
		{
			name:    "self loop",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "f", To: "f"}) },
			kind:    KindSelfLoop,
			sentErr: ErrSelfLoop,
		},
		{
			name:    "default label on condition",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "c", To: "f"}) },
			kind:    KindBadEdgeLabel,
			sentErr: ErrBadEdgeLabel,
		},
		{
			name:    "true label on find",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "f", To: "ins", Output: "true"}) },
			kind:    KindBadEdgeLabel,
			sentErr: ErrBadEdgeLabel,
		},
		{
			name:    "ambiguous edges",
			modify:  func(d *domain.Workflow) { d.Edges = append(d.Edges, domain.Edge{From: "c", To: "s", Output: "true"}) },
			kind:    KindAmbiguousEdge,
			sentErr: ErrAmbiguousEdge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.modify(doc)

			wf, err := Validate(doc, ValidateOptions{})
			if err == nil {
				t.Fatalf("expected error, got workflow %v", wf)
			}
			if !errors.Is(err, tt.sentErr) {
				t.Errorf("error = %v, want %v", err, tt.sentErr)
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error should be ValidationError, got %T", err)
			}
			if ve.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", ve.Kind, tt.kind)
			}
			if tt.field != "" && ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidate_SelfLoopAllowed(t *testing.T) {
	doc := validDoc()
	doc.Edges = append(doc.Edges, domain.Edge{From: "f", To: "f"})

	wf, err := Validate(doc, ValidateOptions{AllowSelfLoopEdges: true})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !wf.HasLabel("f", domain.LabelDefault) {
		t.Error("self-loop edge should be kept")
	}
}

func TestValidate_UnreachableIsWarning(t *testing.T) {
	doc := validDoc()
	doc.Nodes = append(doc.Nodes, findNode("orphan", map[string]any{
		"database": "db", "collection": "c", "filter": map[string]any{},
	}))

	wf, err := Validate(doc, ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	warnings := wf.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "orphan") {
		t.Errorf("warnings = %v", warnings)
	}
	if wf.Reachable()["orphan"] {
		t.Error("orphan should not be reachable")
	}
}

func TestValidate_DocumentRoundTrip(t *testing.T) {
	first, err := Validate(validDoc(), ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	second, err := Validate(first.Document(), ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate(Document()) error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("round trip mismatch:\nfirst:  %#v\nsecond: %#v", first.Document(), second.Document())
	}
}

func TestValidate_DoesNotAliasInput(t *testing.T) {
	doc := validDoc()
	wf, err := Validate(doc, ValidateOptions{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// Изменение исходного документа не влияет на Workflow
	doc.Nodes[0].Config["initialData"].(map[string]any)["x"] = 100

	cfg := wf.Start().Config.(*domain.StartConfig)
	if x, _ := cfg.InitialData.Get("x"); x != float64(5) {
		t.Errorf("initialData.x = %v, want 5", x)
	}
}
