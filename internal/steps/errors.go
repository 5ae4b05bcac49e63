package steps

import (
	"errors"
	"fmt"
)

// Ошибки исполнителей.
var (
	// ErrExecutorNotFound — для типа узла не зарегистрирован исполнитель.
	ErrExecutorNotFound = errors.New("executor not found")

	// ErrTypeMismatch — операнды нельзя сравнить выбранным оператором.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrConfigMismatch — конфиг не того типа, что ожидает исполнитель.
	ErrConfigMismatch = errors.New("config does not match node type")
)

// ErrorKind — категория ошибки узла.
type ErrorKind string

const (
	KindTypeMismatch ErrorKind = "TypeMismatch"
	KindStoreError   ErrorKind = "StoreError"
	KindBadConfig    ErrorKind = "BadConfig"
)

// NodeError — ошибка выполнения узла.
type NodeError struct {
	Kind    ErrorKind
	NodeID  string
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *NodeError) Unwrap() error {
	return e.Err
}
