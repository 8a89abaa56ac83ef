package arbitrate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildVerdictSchema returns the JSON-Schema the reasoning service's answer
// must match. It is sent as a structured-output constraint and re-used
// locally to validate the response.
func BuildVerdictSchema(fields []string) map[string]any {
	fieldProp := map[string]any{"type": "string", "minLength": 1}
	if len(fields) > 0 {
		fieldProp = map[string]any{"type": "string", "enum": fields}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"field":     fieldProp,
			"value":     map[string]any{"type": "string", "minLength": 1},
			"rationale": map[string]any{"type": "string"},
		},
		"required": []string{"field", "value"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
