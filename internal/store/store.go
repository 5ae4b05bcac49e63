package store

import (
	"context"
	"errors"
	"fmt"
)

// DocumentStore — минимальный интерфейс документного хранилища.
//
// Исполнители узлов передают в хранилище только значения,
// совместимые с JSON (map[string]any, []any, string, float64, bool, nil).
// Find возвращает документы в той же модели: идентификаторы приводятся к строкам.
type DocumentStore interface {
	// InsertOne вставляет документ и возвращает его идентификатор.
	InsertOne(ctx context.Context, database, collection string, document map[string]any) (InsertResult, error)

	// Find возвращает документы, подходящие под filter.
	// limit == 0 означает "без ограничения". Пустой результат — пустой slice, не nil.
	Find(ctx context.Context, database, collection string, filter map[string]any, limit int64) ([]map[string]any, error)
}

// InsertResult — результат вставки.
type InsertResult struct {
	InsertedID string `json:"insertedId"`
}

// Ошибки хранилища.
var (
	// ErrInvalidName — пустое имя базы или коллекции.
	ErrInvalidName = errors.New("empty database or collection name")

	// ErrUnavailable — хранилище недоступно (соединение, таймаут).
	ErrUnavailable = errors.New("document store unavailable")
)

// StoreError — ошибка операции с хранилищем.
type StoreError struct {
	Op         string // insertOne / find
	Database   string
	Collection string
	Err        error
}

// Error реализует интерфейс error.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s.%s: %v", e.Op, e.Database, e.Collection, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *StoreError) Unwrap() error {
	return e.Err
}

func checkNames(op, database, collection string) error {
	if database == "" || collection == "" {
		return &StoreError{Op: op, Database: database, Collection: collection, Err: ErrInvalidName}
	}
	return nil
}
