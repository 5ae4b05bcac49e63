package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Graphflow/internal/domain"
)

// LoadWorkflow читает документ из файла. "-" означает stdin.
// Формат определяется по расширению: .yaml/.yml или JSON.
func LoadWorkflow(path string) (*domain.Workflow, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseWorkflowYAML(data)
	default:
		return ParseWorkflowJSON(data)
	}
}

// ParseWorkflowJSON разбирает документ в JSON.
func ParseWorkflowJSON(data []byte) (*domain.Workflow, error) {
	var doc domain.Workflow
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow json: %w", err)
	}
	return &doc, nil
}

// ParseWorkflowYAML разбирает документ в YAML.
//
// Документ проходит через JSON, чтобы значения в конфигах узлов имели те же
// типы, что и у документа, пришедшего по HTTP (числа как float64), а ключи
// отображений сохранили порядок файла.
func ParseWorkflowYAML(data []byte) (*domain.Workflow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}

	raw, err := yamlValue(&root)
	if err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}

	js, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	return ParseWorkflowJSON(js)
}

// yamlValue переводит узел YAML в значение для encoding/json.
// Отображения становятся domain.Values, чтобы не потерять порядок ключей.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])

	case yaml.AliasNode:
		return yamlValue(n.Alias)

	case yaml.MappingNode:
		var out domain.Values
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out.Set(n.Content[i].Value, v)
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
}

// ParseInputs разбирает пары KEY=VALUE.
// VALUE трактуется как JSON, если разбирается, иначе как строка.
func ParseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	inputs := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}

		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		inputs[key] = v
	}
	return inputs, nil
}
