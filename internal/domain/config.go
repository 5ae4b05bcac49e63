package domain

// Значения по умолчанию для конфигов узлов.
const (
	// DefaultFindLimit — лимит mongodb_find, если limit не задан.
	DefaultFindLimit int64 = 10

	// DefaultOutputKey — ключ scope для результатов mongodb_find.
	DefaultOutputKey = "results"

	// LastInsertedIDKey — ключ scope, куда mongodb_insert кладёт ID вставленного документа.
	LastInsertedIDKey = "lastInsertedId"

	// CountSuffix — суффикс ключа с количеством найденных документов.
	CountSuffix = "Count"
)

// NodeConfig — типизированная конфигурация узла (tagged union по NodeType).
type NodeConfig interface {
	// NodeType возвращает тип узла, которому принадлежит конфиг.
	NodeType() NodeType

	// ToMap сериализует конфиг обратно в форму документа.
	ToMap() map[string]any
}

// StartConfig — конфиг узла start.
type StartConfig struct {
	// InitialData — начальное содержимое scope в порядке документа.
	InitialData Values `json:"initialData"`
}

// NodeType реализует NodeConfig.
func (c *StartConfig) NodeType() NodeType { return NodeTypeStart }

// ToMap реализует NodeConfig.
func (c *StartConfig) ToMap() map[string]any {
	return map[string]any{"initialData": c.InitialData}
}

// Operator — оператор сравнения condition.
type Operator string

// Допустимые операторы.
const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Operators возвращает все допустимые операторы.
func Operators() []Operator {
	return []Operator{OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual}
}

// IsOrdering возвращает true для операторов порядка (>, <, >=, <=).
func (o Operator) IsOrdering() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	default:
		return false
	}
}

// ConditionConfig — конфиг узла condition.
type ConditionConfig struct {
	LHS      string   `json:"lhs"`
	Operator Operator `json:"operator"`
	RHS      string   `json:"rhs"`
}

// NodeType реализует NodeConfig.
func (c *ConditionConfig) NodeType() NodeType { return NodeTypeCondition }

// ToMap реализует NodeConfig.
func (c *ConditionConfig) ToMap() map[string]any {
	return map[string]any{
		"lhs":      c.LHS,
		"operator": string(c.Operator),
		"rhs":      c.RHS,
	}
}

// InsertConfig — конфиг узла mongodb_insert.
type InsertConfig struct {
	Database   string         `json:"database"`
	Collection string         `json:"collection"`
	Document   map[string]any `json:"document"`
}

// NodeType реализует NodeConfig.
func (c *InsertConfig) NodeType() NodeType { return NodeTypeMongoInsert }

// ToMap реализует NodeConfig.
func (c *InsertConfig) ToMap() map[string]any {
	return map[string]any{
		"database":   c.Database,
		"collection": c.Collection,
		"document":   c.Document,
	}
}

// FindConfig — конфиг узла mongodb_find.
type FindConfig struct {
	Database   string         `json:"database"`
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`

	// Limit — максимум документов; 0 означает "без ограничения".
	Limit int64 `json:"limit"`

	// OutputKey — ключ scope для массива результатов.
	OutputKey string `json:"outputKey"`
}

// NodeType реализует NodeConfig.
func (c *FindConfig) NodeType() NodeType { return NodeTypeMongoFind }

// ToMap реализует NodeConfig.
func (c *FindConfig) ToMap() map[string]any {
	return map[string]any{
		"database":   c.Database,
		"collection": c.Collection,
		"filter":     c.Filter,
		"limit":      c.Limit,
		"outputKey":  c.OutputKey,
	}
}

// CountKey возвращает ключ scope для количества найденных документов.
func (c *FindConfig) CountKey() string {
	return c.OutputKey + CountSuffix
}
