package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/shaiso/Graphflow/internal/domain"
)

// Схемы конфигов по типам узлов.
var nodeSchemas = map[domain.NodeType]string{
	domain.NodeTypeStart: `{
		"type": "object",
		"properties": {
			"initialData": {"type": "object"}
		}
	}`,

	domain.NodeTypeCondition: `{
		"type": "object",
		"required": ["lhs", "operator", "rhs"],
		"properties": {
			"lhs": {"type": "string"},
			"operator": {"enum": ` + operatorEnum() + `},
			"rhs": {"type": "string"}
		}
	}`,

	domain.NodeTypeMongoInsert: `{
		"type": "object",
		"required": ["database", "collection", "document"],
		"properties": {
			"database": {"type": "string", "minLength": 1},
			"collection": {"type": "string", "minLength": 1},
			"document": {"type": "object"}
		}
	}`,

	domain.NodeTypeMongoFind: `{
		"type": "object",
		"required": ["database", "collection", "filter"],
		"properties": {
			"database": {"type": "string", "minLength": 1},
			"collection": {"type": "string", "minLength": 1},
			"filter": {"type": "object"},
			"limit": {"type": "integer", "minimum": 0},
			"outputKey": {"type": "string", "minLength": 1}
		}
	}`,
}

var compiledSchemas = mustCompileSchemas()

// operatorEnum — JSON-массив допустимых операторов condition.
func operatorEnum() string {
	data, err := json.Marshal(domain.Operators())
	if err != nil {
		panic(fmt.Sprintf("marshal operators: %v", err))
	}
	return string(data)
}

func schemaID(t domain.NodeType) string {
	return "inmemory://graphflow/nodes/" + string(t) + ".json"
}

func mustCompileSchemas() map[domain.NodeType]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	for t, src := range nodeSchemas {
		if err := compiler.AddResource(schemaID(t), strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("add schema %s: %v", t, err))
		}
	}

	out := make(map[domain.NodeType]*jsonschema.Schema, len(nodeSchemas))
	for t := range nodeSchemas {
		compiled, err := compiler.Compile(schemaID(t))
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", t, err))
		}
		out[t] = compiled
	}
	return out
}

// normalizeConfig приводит конфиг узла к JSON-модели данных.
//
// Документы, собранные в коде, содержат int и вложенные map[string]any с
// числами Go-типов; схема и декодер работают с тем, что даёт encoding/json.
// Возвращаемый JSON сохраняет порядок ключей исходного документа.
func normalizeConfig(def domain.NodeDef) (map[string]any, []byte, error) {
	data, err := def.ConfigJSON()
	if err != nil {
		return nil, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, nil, err
	}
	return out, data, nil
}

// checkSchema проверяет конфиг по схеме типа.
// Возвращает поле и сообщение первой найденной ошибки.
func checkSchema(t domain.NodeType, cfg map[string]any) (field, message string, ok bool) {
	schema, found := compiledSchemas[t]
	if !found {
		return "type", fmt.Sprintf("no schema for node type %q", t), false
	}

	err := schema.Validate(cfg)
	if err == nil {
		return "", "", true
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "config", err.Error(), false
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	field = strings.TrimPrefix(ve.InstanceLocation, "/")
	field = strings.ReplaceAll(field, "/", ".")
	if field == "" {
		field = "config"
	}
	return field, ve.Message, false
}
