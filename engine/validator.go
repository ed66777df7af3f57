package engine

import (
	"fmt"
	"reflect"
)

// ArgumentValidator checks tool call arguments against the tool's schema
// before dispatch.
type ArgumentValidator struct {
	tools map[string]ToolSchema
}

// NewArgumentValidator creates a validator from a list of tools.
func NewArgumentValidator(tools []ToolSchema) *ArgumentValidator {
	toolMap := make(map[string]ToolSchema, len(tools))
	for _, t := range tools {
		toolMap[t.Name] = t
	}
	return &ArgumentValidator{tools: toolMap}
}

// ValidateCall checks required fields and argument types. Extra arguments
// are allowed; null values pass the type check (required covers absence).
func (v *ArgumentValidator) ValidateCall(name string, args map[string]any) error {
	tool, exists := v.tools[name]
	if !exists {
		return fmt.Errorf("unknown tool: %s", name)
	}

	for _, fieldName := range tool.InputSchema.Required {
		if _, exists := args[fieldName]; !exists {
			return fmt.Errorf("missing required parameter: %s", fieldName)
		}
	}

	for argName, argValue := range args {
		propSchema, exists := tool.InputSchema.Properties[argName]
		if !exists {
			continue
		}
		expectedType, ok := propSchema["type"].(string)
		if !ok {
			continue
		}
		if err := validateType(argName, argValue, expectedType); err != nil {
			return err
		}
	}

	return nil
}

func validateType(name string, value any, expectedType string) error {
	if value == nil {
		return nil
	}

	actualType := reflect.TypeOf(value).Kind()

	switch expectedType {
	case "string":
		if actualType != reflect.String {
			return fmt.Errorf("parameter %s: expected string, got %v", name, actualType)
		}
	case "number":
		if actualType != reflect.Float64 && actualType != reflect.Float32 {
			return fmt.Errorf("parameter %s: expected number, got %v", name, actualType)
		}
	case "integer":
		// JSON numbers arrive as float64; accept whole numbers only.
		switch n := value.(type) {
		case float64:
			if n != float64(int(n)) {
				return fmt.Errorf("parameter %s: expected integer, got float %v", name, n)
			}
		case int:
		default:
			return fmt.Errorf("parameter %s: expected integer, got %v", name, actualType)
		}
	case "boolean":
		if actualType != reflect.Bool {
			return fmt.Errorf("parameter %s: expected boolean, got %v", name, actualType)
		}
	case "array":
		if actualType != reflect.Slice && actualType != reflect.Array {
			return fmt.Errorf("parameter %s: expected array, got %v", name, actualType)
		}
	case "object":
		if actualType != reflect.Map {
			return fmt.Errorf("parameter %s: expected object, got %v", name, actualType)
		}
	}

	return nil
}
