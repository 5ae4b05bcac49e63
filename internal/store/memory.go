package store

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore — DocumentStore в памяти.
//
// Фильтр поддерживает только равенство полей (включая пути через точку);
// операторы MongoDB ($gt, $in и т.п.) не поддерживаются.
type MemoryStore struct {
	mu      sync.RWMutex
	colls   map[string][]map[string]any
	failErr error
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{colls: make(map[string][]map[string]any)}
}

func collKey(database, collection string) string {
	return database + "." + collection
}

// FailWith заставляет все последующие операции возвращать err.
// nil снимает сбой.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Count возвращает количество документов в коллекции.
func (s *MemoryStore) Count(database, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.colls[collKey(database, collection)])
}

// InsertOne реализует DocumentStore.
func (s *MemoryStore) InsertOne(ctx context.Context, database, collection string, document map[string]any) (InsertResult, error) {
	if err := checkNames("insertOne", database, collection); err != nil {
		return InsertResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return InsertResult{}, &StoreError{Op: "insertOne", Database: database, Collection: collection, Err: err}
	}

	doc, err := cloneDocument(document)
	if err != nil {
		return InsertResult{}, &StoreError{Op: "insertOne", Database: database, Collection: collection, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return InsertResult{}, &StoreError{Op: "insertOne", Database: database, Collection: collection, Err: s.failErr}
	}

	id, ok := doc["_id"].(string)
	if !ok {
		id = uuid.NewString()
		doc["_id"] = id
	}

	key := collKey(database, collection)
	s.colls[key] = append(s.colls[key], doc)

	return InsertResult{InsertedID: id}, nil
}

// Find реализует DocumentStore.
func (s *MemoryStore) Find(ctx context.Context, database, collection string, filter map[string]any, limit int64) ([]map[string]any, error) {
	if err := checkNames("find", database, collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "find", Database: database, Collection: collection, Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failErr != nil {
		return nil, &StoreError{Op: "find", Database: database, Collection: collection, Err: s.failErr}
	}

	results := make([]map[string]any, 0)
	for _, doc := range s.colls[collKey(database, collection)] {
		if limit > 0 && int64(len(results)) >= limit {
			break
		}
		if !matches(doc, filter) {
			continue
		}
		cp, err := cloneDocument(doc)
		if err != nil {
			return nil, &StoreError{Op: "find", Database: database, Collection: collection, Err: err}
		}
		results = append(results, cp)
	}

	return results, nil
}

// cloneDocument делает глубокую копию и приводит значения к JSON-модели.
func cloneDocument(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func matches(doc, filter map[string]any) bool {
	for path, want := range filter {
		got, ok := lookupPath(doc, path)
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
