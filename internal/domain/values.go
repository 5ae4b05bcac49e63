package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Values — упорядоченное отображение ключ → значение.
//
// Порядок ключей — порядок первой записи. JSON сериализуется с сохранением
// этого порядка. Нулевое значение готово к использованию.
type Values struct {
	keys []string
	m    map[string]any
}

// ValuesFromMap строит Values из map; ключи сортируются.
func ValuesFromMap(m map[string]any) Values {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var v Values
	for _, k := range keys {
		v.Set(k, m[k])
	}
	return v
}

// Len возвращает количество ключей.
func (v Values) Len() int {
	return len(v.keys)
}

// Keys возвращает ключи в порядке вставки.
func (v Values) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Get возвращает значение по ключу.
func (v Values) Get(key string) (any, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Set записывает значение. Существующий ключ сохраняет свою позицию.
func (v *Values) Set(key string, value any) {
	if v.m == nil {
		v.m = make(map[string]any)
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
}

// Clone возвращает копию (ключи и верхний уровень значений).
func (v Values) Clone() Values {
	out := Values{
		keys: make([]string, len(v.keys)),
		m:    make(map[string]any, len(v.m)),
	}
	copy(out.keys, v.keys)
	for k, val := range v.m {
		out.m[k] = val
	}
	return out
}

// MarshalJSON сериализует объект с сохранением порядка ключей.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := json.Marshal(v.m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON читает JSON-объект, сохраняя порядок ключей.
func (v *Values) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*v = Values{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("values: expected object, got %v", tok)
	}

	var out Values
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("values: expected key, got %v", keyTok)
		}

		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("values: decode %q: %w", key, err)
		}
		out.Set(key, val)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*v = out
	return nil
}
