package engine

import (
	"github.com/shaiso/Graphflow/internal/domain"
)

// Node — проверенный узел workflow.
type Node struct {
	ID     string
	Type   domain.NodeType
	Config domain.NodeConfig
}

// Workflow — проверенный, неизменяемый граф.
//
// Создаётся только через Validate. Гарантирует: ровно один start, все рёбра
// ссылаются на существующие узлы, метки допустимы для типа источника,
// из одного узла нет двух рёбер с одной меткой.
type Workflow struct {
	id   string
	name string

	nodes    []*Node
	index    map[string]*Node
	edges    []domain.Edge
	outgoing map[string][]domain.Edge
	start    *Node

	warnings []string
}

func newWorkflow(id, name string) *Workflow {
	return &Workflow{
		id:       id,
		name:     name,
		index:    make(map[string]*Node),
		outgoing: make(map[string][]domain.Edge),
	}
}

// ID возвращает идентификатор документа.
func (w *Workflow) ID() string { return w.id }

// Name возвращает имя workflow.
func (w *Workflow) Name() string { return w.name }

// Start возвращает узел start.
func (w *Workflow) Start() *Node { return w.start }

// Size возвращает количество узлов.
func (w *Workflow) Size() int { return len(w.nodes) }

// Node возвращает узел по ID.
func (w *Workflow) Node(id string) (*Node, bool) {
	n, ok := w.index[id]
	return n, ok
}

// Nodes возвращает узлы в порядке документа.
func (w *Workflow) Nodes() []*Node {
	out := make([]*Node, len(w.nodes))
	copy(out, w.nodes)
	return out
}

// Edges возвращает рёбра в порядке документа (метки нормализованы).
func (w *Workflow) Edges() []domain.Edge {
	out := make([]domain.Edge, len(w.edges))
	copy(out, w.edges)
	return out
}

// Outgoing возвращает исходящие рёбра узла.
func (w *Workflow) Outgoing(id string) []domain.Edge {
	edges := w.outgoing[id]
	out := make([]domain.Edge, len(edges))
	copy(out, edges)
	return out
}

// Next возвращает рёбра из узла id с меткой label.
// После Validate результат содержит не более одного ребра.
func (w *Workflow) Next(id, label string) []domain.Edge {
	var out []domain.Edge
	for _, e := range w.Outgoing(id) {
		if e.Output == label {
			out = append(out, e)
		}
	}
	return out
}

// HasLabel проверяет, есть ли у узла исходящее ребро с меткой label.
func (w *Workflow) HasLabel(id, label string) bool {
	return len(w.Next(id, label)) > 0
}

// Warnings возвращает предупреждения валидации (например, недостижимые узлы).
func (w *Workflow) Warnings() []string {
	out := make([]string, len(w.warnings))
	copy(out, w.warnings)
	return out
}

// Reachable возвращает множество узлов, достижимых из start.
func (w *Workflow) Reachable() map[string]bool {
	seen := make(map[string]bool, len(w.nodes))
	if w.start == nil {
		return seen
	}

	queue := []string{w.start.ID}
	seen[w.start.ID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range w.outgoing[id] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// Document сериализует workflow обратно в форму документа.
// Validate(Document()) даёт эквивалентный Workflow.
func (w *Workflow) Document() *domain.Workflow {
	doc := &domain.Workflow{
		ID:    w.id,
		Name:  w.name,
		Nodes: make([]domain.NodeDef, 0, len(w.nodes)),
		Edges: w.Edges(),
	}
	for _, n := range w.nodes {
		doc.Nodes = append(doc.Nodes, domain.NodeDef{
			ID:     n.ID,
			Type:   n.Type,
			Config: n.Config.ToMap(),
		})
	}
	return doc
}

func (w *Workflow) addNode(n *Node) {
	w.nodes = append(w.nodes, n)
	w.index[n.ID] = n
	if n.Type == domain.NodeTypeStart && w.start == nil {
		w.start = n
	}
}

func (w *Workflow) addEdge(e domain.Edge) {
	w.edges = append(w.edges, e)
	w.outgoing[e.From] = append(w.outgoing[e.From], e)
}
