package codebook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// OutputSchema validates classifier responses for one codebook variant
type OutputSchema struct {
	schema *jsonschema.Schema
}

// SchemaDocument returns the JSON Schema describing valid responses for cb
func (cb *Codebook) SchemaDocument() map[string]interface{} {
	labels := make([]interface{}, 0, len(cb.Classes))
	for _, l := range cb.Labels() {
		labels = append(labels, l)
	}

	props := map[string]interface{}{
		"label":      map[string]interface{}{"enum": labels},
		"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		"reasoning":  map[string]interface{}{"type": "string"},
	}
	required := []interface{}{"label", "confidence"}

	if cb.Kind == KindExtraction {
		props["items"] = map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"quarter", "amount"},
				"properties": map[string]interface{}{
					"quarter":  map[string]interface{}{"type": "string", "pattern": `^\d{4}\s*-?\s*[Qq]?0?[1-4]$`},
					"amount":   map[string]interface{}{"type": "number"},
					"evidence": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
			},
		}
		required = append(required, "items")
	}

	return map[string]interface{}{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

// CompileSchema compiles the output schema for cb
func (cb *Codebook) CompileSchema() (*OutputSchema, error) {
	doc, err := json.Marshal(cb.SchemaDocument())
	if err != nil {
		return nil, fmt.Errorf("marshal output schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("output.json", strings.NewReader(string(doc))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("output.json")
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}
	return &OutputSchema{schema: schema}, nil
}

// Validate checks a decoded JSON document against the schema
func (s *OutputSchema) Validate(doc interface{}) error {
	return s.schema.Validate(doc)
}

// ValidateBytes decodes and validates raw JSON
func (s *OutputSchema) ValidateBytes(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	return s.schema.Validate(doc)
}
