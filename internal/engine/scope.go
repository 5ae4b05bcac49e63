package engine

import (
	"strconv"
	"strings"

	"github.com/shaiso/Graphflow/internal/domain"
)

// ScopeReader — доступ к scope только на чтение.
//
// Исполнители узлов получают ScopeReader и возвращают изменения через Delta.
type ScopeReader interface {
	// Get возвращает значение верхнего уровня.
	Get(key string) (any, bool)

	// Lookup разрешает путь вида a.b.0.c.
	Lookup(path string) (any, bool)

	// Snapshot возвращает копию текущего состояния.
	Snapshot() domain.Values
}

// Mutation — запись одного ключа scope.
type Mutation struct {
	Key   string
	Value any
}

// Delta — упорядоченный список записей, возвращаемый исполнителем узла.
type Delta []Mutation

// Set добавляет запись и возвращает обновлённую Delta.
func (d Delta) Set(key string, value any) Delta {
	return append(d, Mutation{Key: key, Value: value})
}

// Scope — хранилище переменных одного run.
//
// Принадлежит walker'у; не потокобезопасен. Значения не изменяются на месте:
// Apply заменяет значение ключа целиком, поэтому Snapshot может делить
// вложенные значения с живым scope.
type Scope struct {
	vals domain.Values
}

// NewScope создаёт пустой scope.
func NewScope() *Scope {
	return &Scope{}
}

// Get возвращает значение верхнего уровня.
func (s *Scope) Get(key string) (any, bool) {
	return s.vals.Get(key)
}

// Keys возвращает ключи в порядке первой записи.
func (s *Scope) Keys() []string {
	return s.vals.Keys()
}

// Len возвращает количество ключей.
func (s *Scope) Len() int {
	return s.vals.Len()
}

// Snapshot возвращает копию текущего состояния.
func (s *Scope) Snapshot() domain.Values {
	return s.vals.Clone()
}

// Apply применяет Delta по порядку; последняя запись ключа побеждает.
func (s *Scope) Apply(d Delta) {
	for _, m := range d {
		s.vals.Set(m.Key, m.Value)
	}
}

// MarshalJSON сериализует scope с сохранением порядка ключей.
func (s *Scope) MarshalJSON() ([]byte, error) {
	return s.vals.MarshalJSON()
}

// Lookup разрешает путь вида a.b.0.c.
//
// Сначала ищется ключ, совпадающий с путём целиком, затем путь
// разбирается по точкам: сегменты-числа индексируют массивы.
func (s *Scope) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	if v, ok := s.vals.Get(path); ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	cur, ok := s.vals.Get(parts[0])
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		cur, ok = descend(cur, part)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// descend спускается на один уровень вложенности.
func descend(v any, part string) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		val, ok := x[part]
		return val, ok

	case domain.Values:
		return x.Get(part)

	case []any:
		i, ok := index(part, len(x))
		if !ok {
			return nil, false
		}
		return x[i], true

	case []map[string]any:
		i, ok := index(part, len(x))
		if !ok {
			return nil, false
		}
		return x[i], true

	default:
		return nil, false
	}
}

func index(part string, n int) (int, bool) {
	i, err := strconv.Atoi(part)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
