package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ToolHandler executes one tool invocation.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// FuncRegistry is an in-process ToolRegistry built from Go functions, with
// JSON schemas generated from the handlers' parameter structs.
type FuncRegistry struct {
	tools     []ToolSchema
	handlers  map[string]ToolHandler
	validator *ArgumentValidator
}

// NewFuncRegistry creates an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{handlers: make(map[string]ToolHandler)}
}

// AddFunc registers a Go function as a tool with automatic schema
// generation. The expected signature is:
//
//	func(ctx context.Context, params YourStructType) (result any, err error)
//
// The params struct's fields and tags drive the generated schema.
func (r *FuncRegistry) AddFunc(name, description string, handlerFunc any) error {
	handler, schema, err := wrapFunction(handlerFunc)
	if err != nil {
		return fmt.Errorf("failed to wrap function %s: %w", name, err)
	}
	r.Add(ToolSchema{Name: name, Description: description, InputSchema: schema}, handler)
	return nil
}

// Add registers a pre-built tool and its handler. The validator is rebuilt
// here so Execute never writes registry state and stays safe for
// concurrent dispatch. Registration must finish before execution begins.
func (r *FuncRegistry) Add(tool ToolSchema, handler ToolHandler) {
	r.tools = append(r.tools, tool)
	r.handlers[tool.Name] = handler
	r.validator = NewArgumentValidator(r.tools)
}

// List implements ToolRegistry. Registration order is preserved.
func (r *FuncRegistry) List() []ToolSchema {
	out := make([]ToolSchema, len(r.tools))
	copy(out, r.tools)
	return out
}

// Execute implements ToolRegistry. Handler errors and validation failures
// become failed ToolResults, not engine errors.
func (r *FuncRegistry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	handler, ok := r.handlers[name]
	if !ok {
		return ToolResult{Error: fmt.Sprintf("no handler for tool %q", name)}
	}
	if err := r.validator.ValidateCall(name, args); err != nil {
		return ToolResult{Error: err.Error()}
	}

	result, err := handler(ctx, args)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	out, err := json.Marshal(result)
	if err != nil {
		return ToolResult{Error: fmt.Sprintf("tool %q result not serializable: %v", name, err)}
	}
	return ToolResult{Success: true, Output: string(out)}
}

// wrapFunction inspects a Go function and generates a handler plus the
// input schema for its parameter struct.
func wrapFunction(fn any) (ToolHandler, InputSchema, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, InputSchema{}, errors.New("handler must be a function")
	}
	if fnType.NumIn() != 2 {
		return nil, InputSchema{}, errors.New("function must have exactly 2 parameters: (context.Context, ParamsStruct)")
	}
	if fnType.NumOut() != 2 {
		return nil, InputSchema{}, errors.New("function must return exactly 2 values: (result any, error)")
	}

	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if !fnType.In(0).Implements(ctxType) {
		return nil, InputSchema{}, errors.New("first parameter must be context.Context")
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errType) {
		return nil, InputSchema{}, errors.New("second return value must be error")
	}

	paramsType := fnType.In(1)
	if paramsType.Kind() != reflect.Struct {
		return nil, InputSchema{}, errors.New("second parameter must be a struct")
	}

	schema, err := schemaFromStruct(paramsType)
	if err != nil {
		return nil, InputSchema{}, fmt.Errorf("schema generation failed: %w", err)
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		paramsVal := reflect.New(paramsType).Interface()
		if err := json.Unmarshal(argsJSON, paramsVal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args into %s: %w", paramsType.Name(), err)
		}

		results := fnVal.Call([]reflect.Value{
			reflect.ValueOf(ctx),
			reflect.ValueOf(paramsVal).Elem(),
		})
		if errVal := results[1].Interface(); errVal != nil {
			return nil, errVal.(error)
		}
		return results[0].Interface(), nil
	}

	return handler, schema, nil
}

// schemaFromStruct creates an input schema from a struct's fields and
// tags. Fields without omitempty are required; a `description` tag becomes
// the property description.
func schemaFromStruct(t reflect.Type) (InputSchema, error) {
	if t.Kind() != reflect.Struct {
		return InputSchema{}, errors.New("type must be a struct")
	}

	schema := InputSchema{
		Type:       "object",
		Properties: make(map[string]map[string]any),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
			if !containsString(parts, "omitempty") {
				schema.Required = append(schema.Required, fieldName)
			}
		} else {
			schema.Required = append(schema.Required, fieldName)
		}

		fieldSchema := typeToSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema["description"] = desc
		}
		schema.Properties[fieldName] = fieldSchema
	}

	return schema, nil
}

// typeToSchema maps a Go type to a JSON-schema property.
func typeToSchema(t reflect.Type) map[string]any {
	schema := make(map[string]any)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		schema["type"] = "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema["type"] = "integer"
	case reflect.Float32, reflect.Float64:
		schema["type"] = "number"
	case reflect.Bool:
		schema["type"] = "boolean"
	case reflect.Slice, reflect.Array:
		schema["type"] = "array"
		schema["items"] = typeToSchema(t.Elem())
	case reflect.Struct:
		nested, _ := schemaFromStruct(t)
		return schemaMap(nested)
	case reflect.Map:
		schema["type"] = "object"
	default:
		schema["type"] = "string" // fallback
	}

	return schema
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
