package tool

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const inputSchemaResource = "input_schema.json"

// CompileInputSchema compiles a contract input schema for payload checks.
func CompileInputSchema(schema map[string]any) (*jsonschema.Schema, error) {
	doc, err := jsonRoundTrip(schema)
	if err != nil {
		return nil, fmt.Errorf("tool: normalize input schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(inputSchemaResource, doc); err != nil {
		return nil, fmt.Errorf("tool: add input schema: %w", err)
	}
	compiled, err := c.Compile(inputSchemaResource)
	if err != nil {
		return nil, fmt.Errorf("tool: compile input schema: %w", err)
	}
	return compiled, nil
}

// ValidatePayload checks payload against the contract's input schema.
func ValidatePayload(contract Contract, payload map[string]any) error {
	if len(contract.InputSchema) == 0 {
		return nil
	}

	compiled, err := CompileInputSchema(contract.InputSchema)
	if err != nil {
		return withToolErrorDetails(
			newToolError(ToolErrorCodeInvalidSchema, "tool: input schema for "+contract.ID+" does not compile", false, err),
			map[string]any{"tool_id": contract.ID},
		)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	doc, err := jsonRoundTrip(payload)
	if err != nil {
		return newToolError(ToolErrorCodeInvalidPayload, "tool: payload is not JSON-encodable", false, err)
	}

	if err := compiled.Validate(doc); err != nil {
		details := map[string]any{"tool_id": contract.ID}
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			details["violations"] = schemaViolations(validationErr)
		}
		return withToolErrorDetails(
			newToolError(ToolErrorCodeInvalidPayload, fmt.Sprintf("tool: payload rejected by %s input schema", contract.ID), false, err),
			details,
		)
	}
	return nil
}

// schemaViolations flattens the leaf errors of a validation tree.
func schemaViolations(err *jsonschema.ValidationError) []string {
	if err == nil {
		return nil
	}
	if len(err.Causes) == 0 {
		return []string{err.Error()}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, schemaViolations(cause)...)
	}
	return out
}

func jsonRoundTrip(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
