package engine

import (
	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// NormalizeTool folds a duck-typed tool definition into the canonical
// shape. A tool may arrive with either input_schema or the legacy
// parameters key; whichever is present becomes InputSchema. A tool with
// neither is rejected before any network call.
func NormalizeTool(raw RawTool) (ToolSchema, error) {
	src := raw.InputSchema
	if src == nil {
		src = raw.Parameters
	}
	if src == nil {
		return ToolSchema{}, &SchemaError{Tool: raw.Name, Reason: "missing input_schema (or legacy parameters)"}
	}

	schema := InputSchema{Type: "object", Properties: map[string]map[string]any{}}
	if t, ok := src["type"].(string); ok && t != "" {
		schema.Type = t
	}
	if props, ok := src["properties"].(map[string]any); ok {
		for name, sub := range props {
			if m, ok := sub.(map[string]any); ok {
				schema.Properties[name] = m
			}
		}
	}
	schema.Required = stringSlice(src["required"])
	if ap, ok := src["additionalProperties"].(bool); ok {
		schema.AdditionalProperties = &ap
	}

	return ToolSchema{Name: raw.Name, Description: raw.Description, InputSchema: schema}, nil
}

// NormalizeTools is the batch form. Declaration order is observable to the
// model and is preserved.
func NormalizeTools(raws []RawTool) ([]ToolSchema, error) {
	out := make([]ToolSchema, 0, len(raws))
	for _, raw := range raws {
		t, err := NormalizeTool(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// stringSlice handles required arriving as []string (typed code) or []any
// (JSON unmarshal).
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// schemaMap renders the canonical InputSchema as a plain JSON-schema map.
func schemaMap(s InputSchema) map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, sub := range s.Properties {
		props[name] = sub
	}
	m := map[string]any{
		"type":       s.Type,
		"properties": props,
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.AdditionalProperties != nil {
		m["additionalProperties"] = *s.AdditionalProperties
	}
	return m
}

// ToOpenAITools converts canonical tools to OpenAI function declarations.
func ToOpenAITools(tools []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap(t.InputSchema),
			},
		}
	}
	return out
}

// ToAnthropicTools converts canonical tools to Anthropic tool params. A
// CacheControl annotation on a tool becomes the block's ephemeral marker.
func ToAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		props := make(map[string]any, len(t.InputSchema.Properties))
		for name, sub := range t.InputSchema.Properties {
			props[name] = sub
		}
		tp := &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   t.InputSchema.Required,
			},
		}
		if t.CacheControl != nil {
			tp.CacheControl = anthropic.CacheControlEphemeralParam{
				TTL: anthropic.CacheControlEphemeralTTL(t.CacheControl.TTL),
			}
		}
		out[i] = anthropic.ToolUnionParam{OfTool: tp}
	}
	return out
}

// ToGeminiDeclarations converts canonical tools to genai function
// declarations. The genai declaration format takes upper-cased type tokens
// and has no additionalProperties, so that field is dropped here.
func ToGeminiDeclarations(tools []ToolSchema) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(schemaMap(t.InputSchema)),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(src map[string]any) *genai.Schema {
	out := &genai.Schema{Type: geminiType(src)}
	if d, ok := src["description"].(string); ok {
		out.Description = d
	}
	if props, ok := src["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if m, ok := sub.(map[string]any); ok {
				out.Properties[name] = toGeminiSchema(m)
			}
		}
	}
	out.Required = stringSlice(src["required"])
	if items, ok := src["items"].(map[string]any); ok {
		out.Items = toGeminiSchema(items)
	}
	if enum, ok := src["enum"]; ok {
		out.Enum = stringSlice(enum)
	}
	return out
}

func geminiType(src map[string]any) genai.Type {
	t, _ := src["type"].(string)
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object", "":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
