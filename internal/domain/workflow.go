package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// NodeType — тип узла workflow.
type NodeType string

// Поддерживаемые типы узлов.
const (
	// NodeTypeStart — точка входа, засевает scope данными initialData.
	NodeTypeStart NodeType = "start"

	// NodeTypeCondition — ветвление по результату сравнения lhs и rhs.
	NodeTypeCondition NodeType = "condition"

	// NodeTypeMongoInsert — вставка документа в коллекцию.
	NodeTypeMongoInsert NodeType = "mongodb_insert"

	// NodeTypeMongoFind — поиск документов в коллекции.
	NodeTypeMongoFind NodeType = "mongodb_find"
)

// Метки ветвления (edge.output).
const (
	// LabelDefault — метка по умолчанию для неветвящихся узлов.
	LabelDefault = "default"

	// LabelTrue и LabelFalse — метки, которые выдаёт condition.
	LabelTrue  = "true"
	LabelFalse = "false"

	// LabelError — ребро, по которому уходит узел с continue-on-error после сбоя.
	LabelError = "error"
)

// String возвращает строковое представление NodeType.
func (t NodeType) String() string {
	return string(t)
}

// IsKnown проверяет, что тип узла поддерживается.
func (t NodeType) IsKnown() bool {
	switch t {
	case NodeTypeStart, NodeTypeCondition, NodeTypeMongoInsert, NodeTypeMongoFind:
		return true
	default:
		return false
	}
}

// AllowedLabels возвращает метки исходящих рёбер, допустимые для типа узла.
func (t NodeType) AllowedLabels() []string {
	if t == NodeTypeCondition {
		return []string{LabelTrue, LabelFalse, LabelError}
	}
	return []string{LabelDefault, LabelError}
}

// AllowsLabel проверяет, может ли узел этого типа иметь ребро с меткой label.
func (t NodeType) AllowsLabel(label string) bool {
	return slices.Contains(t.AllowedLabels(), label)
}

// Workflow — документ workflow, присланный редактором.
//
// Это "сырая" форма: конфиги узлов ещё не проверены и хранятся как map.
// Проверенное представление строит engine.Validate.
type Workflow struct {
	// ID — идентификатор документа (присваивается при сохранении).
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Name — человекочитаемое имя workflow.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Nodes — узлы графа.
	Nodes []NodeDef `json:"nodes" yaml:"nodes"`

	// Edges — направленные помеченные рёбра.
	Edges []Edge `json:"edges" yaml:"edges"`
}

// NodeDef — определение узла в документе.
//
// При разборе JSON сохраняется исходный текст config: map теряет порядок
// ключей, а от порядка initialData зависит порядок ключей scope.
// Config разобранного документа не меняют на месте.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках документа.
	ID string `json:"id" yaml:"id"`

	// Type — тип узла, определяет схему Config.
	Type NodeType `json:"type" yaml:"type"`

	// Config — конфигурация узла (зависит от типа).
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	rawConfig json.RawMessage
}

type nodeDefJSON struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ConfigJSON возвращает config в JSON: исходный текст, если узел разобран
// из JSON, иначе сериализованный Config.
func (d NodeDef) ConfigJSON() ([]byte, error) {
	if len(d.rawConfig) > 0 {
		return d.rawConfig, nil
	}
	if d.Config == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Config)
}

// UnmarshalJSON реализует json.Unmarshaler.
func (d *NodeDef) UnmarshalJSON(data []byte) error {
	var in nodeDefJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := NodeDef{ID: in.ID, Type: in.Type}
	if len(in.Config) > 0 && string(in.Config) != "null" {
		if err := json.Unmarshal(in.Config, &out.Config); err != nil {
			return fmt.Errorf("node %s: config: %w", in.ID, err)
		}
		out.rawConfig = in.Config
	}
	*d = out
	return nil
}

// MarshalJSON реализует json.Marshaler.
func (d NodeDef) MarshalJSON() ([]byte, error) {
	out := nodeDefJSON{ID: d.ID, Type: d.Type}
	if len(d.rawConfig) > 0 || len(d.Config) > 0 {
		cfg, err := d.ConfigJSON()
		if err != nil {
			return nil, err
		}
		out.Config = cfg
	}
	return json.Marshal(out)
}

// Edge — ребро графа.
type Edge struct {
	// From — ID узла-источника.
	From string `json:"from" yaml:"from"`

	// To — ID узла-приёмника.
	To string `json:"to" yaml:"to"`

	// Output — метка ветки; ребро выбирается, когда узел выдаёт именно её.
	// Пустая метка означает "default".
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Label возвращает метку ребра с учётом значения по умолчанию.
func (e Edge) Label() string {
	if e.Output == "" {
		return LabelDefault
	}
	return e.Output
}

// StoredWorkflow — сохранённый документ workflow.
type StoredWorkflow struct {
	// ID — идентификатор, выданный при создании (uuid).
	ID string `json:"id"`

	// Name — имя workflow (дублирует Document.Name для списков).
	Name string `json:"name"`

	// Document — документ в том виде, в каком он прошёл валидацию.
	Document Workflow `json:"document"`

	// CreatedAt — время сохранения.
	CreatedAt time.Time `json:"created_at"`
}
