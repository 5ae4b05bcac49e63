package engine

import "errors"

// Ошибки валидации документа workflow.
var (
	// ErrEmptyDocument — документ не содержит узлов.
	ErrEmptyDocument = errors.New("workflow has no nodes")

	// ErrMissingStart — нет узла start.
	ErrMissingStart = errors.New("workflow has no start node")

	// ErrMultipleStart — больше одного узла start.
	ErrMultipleStart = errors.New("workflow has more than one start node")

	// ErrDuplicateID — несколько узлов с одинаковым ID.
	ErrDuplicateID = errors.New("duplicate node ID")

	// ErrDanglingEdge — ребро ссылается на несуществующий узел.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrSelfLoop — ребро из узла в самого себя.
	ErrSelfLoop = errors.New("self-loop edge")

	// ErrBadConfig — конфиг узла не соответствует схеме типа.
	ErrBadConfig = errors.New("invalid node config")

	// ErrBadEdgeLabel — метка ребра недопустима для типа узла-источника.
	ErrBadEdgeLabel = errors.New("invalid edge label")

	// ErrAmbiguousEdge — два ребра из одного узла с одной меткой.
	ErrAmbiguousEdge = errors.New("ambiguous edges")
)

// ErrorKind — категория ошибки валидации.
type ErrorKind string

const (
	KindEmptyDocument ErrorKind = "EmptyDocument"
	KindMissingStart  ErrorKind = "MissingStart"
	KindMultipleStart ErrorKind = "MultipleStart"
	KindDuplicateID   ErrorKind = "DuplicateId"
	KindDanglingEdge  ErrorKind = "DanglingEdge"
	KindSelfLoop      ErrorKind = "SelfLoop"
	KindBadConfig     ErrorKind = "BadConfig"
	KindBadEdgeLabel  ErrorKind = "BadEdgeLabel"
	KindAmbiguousEdge ErrorKind = "AmbiguousEdge"
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Kind    ErrorKind // категория
	NodeID  string    // ID узла, где произошла ошибка
	Field   string    // поле, вызвавшее ошибку
	Message string    // описание ошибки
	Err     error     // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(kind ErrorKind, nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
