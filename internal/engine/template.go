package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderRe находит {{ path }}; пробелы внутри скобок допускаются.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Resolve подставляет значения из scope в шаблон.
//
// Каждый {{ path }} заменяется строковым представлением значения (см. Stringify).
// Неразрешённый путь заменяется пустой строкой и даёт предупреждение.
// Подстановка однопроходная: значения, содержащие {{ }}, повторно не разбираются.
// Строка без {{ возвращается как есть.
func Resolve(tmpl string, scope ScopeReader) (string, []string) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var warnings []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]

		var (
			val any
			ok  bool
		)
		if scope != nil {
			val, ok = scope.Lookup(path)
		}
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unresolved placeholder {{%s}}", path))
			return ""
		}
		return Stringify(val)
	})

	return out, warnings
}

// ResolveValue рекурсивно разрешает шаблоны во всех строках значения.
// Map и slice копируются; остальные типы возвращаются как есть.
func ResolveValue(value any, scope ScopeReader) (any, []string) {
	var warnings []string

	var walk func(v any) any
	walk = func(v any) any {
		switch x := v.(type) {
		case string:
			s, w := Resolve(x, scope)
			warnings = append(warnings, w...)
			return s

		case map[string]any:
			out := make(map[string]any, len(x))
			for k, val := range x {
				out[k] = walk(val)
			}
			return out

		case []any:
			out := make([]any, len(x))
			for i, val := range x {
				out[i] = walk(val)
			}
			return out

		case map[string]string:
			out := make(map[string]string, len(x))
			for k, val := range x {
				s, w := Resolve(val, scope)
				warnings = append(warnings, w...)
				out[k] = s
			}
			return out

		case []string:
			out := make([]string, len(x))
			for i, val := range x {
				s, w := Resolve(val, scope)
				warnings = append(warnings, w...)
				out[i] = s
			}
			return out

		default:
			return v
		}
	}

	return walk(value), warnings
}

// ResolveMap — обёртка над ResolveValue для map[string]any.
func ResolveMap(m map[string]any, scope ScopeReader) (map[string]any, []string) {
	if m == nil {
		return map[string]any{}, nil
	}
	resolved, warnings := ResolveValue(m, scope)
	return resolved.(map[string]any), warnings
}

// Stringify возвращает строковое представление значения scope.
//
// Строки — без изменений; числа — в кратчайшей десятичной форме;
// bool — true/false; nil — "null"; объекты и массивы — компактный JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
