package specstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://evodash.local/schemas/spec.schema.json"

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "features", "workflows"],
  "properties": {
    "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+"},
    "features": {
      "type": "object",
      "propertyNames": {"minLength": 1},
      "additionalProperties": {"$ref": "#/$defs/feature"}
    },
    "workflows": {"type": "array", "items": {"$ref": "#/$defs/workflow"}}
  },
  "$defs": {
    "feature": {
      "type": "object",
      "required": ["component", "status"],
      "properties": {
        "description": {"type": "string"},
        "component": {"type": "string", "minLength": 1},
        "status": {"enum": ["active", "inactive"]},
        "requestId": {"type": "string"},
        "createdAt": {"type": "string"}
      }
    },
    "workflow": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "trigger": {"type": "string"},
        "steps": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("spec schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("spec schema compile failed: %w", err)
	}
	return schema, nil
}

// validate checks doc against the schema using its JSON form.
func validate(schema *jsonschema.Schema, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}
