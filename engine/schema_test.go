package engine

import (
	"errors"
	"testing"

	"google.golang.org/genai"
)

func sampleRawTool() RawTool {
	return RawTool{
		Name:        "read_file",
		Description: "Read a file from disk",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":  map[string]any{"type": "string", "description": "File path"},
				"lines": map[string]any{"type": "integer"},
			},
			"required":             []any{"path"},
			"additionalProperties": false,
		},
	}
}

func TestNormalizeTool_InputSchema(t *testing.T) {
	tool, err := NormalizeTool(sampleRawTool())
	if err != nil {
		t.Fatalf("NormalizeTool failed: %v", err)
	}
	if tool.Name != "read_file" {
		t.Errorf("expected name read_file, got %q", tool.Name)
	}
	if tool.InputSchema.Type != "object" {
		t.Errorf("expected type object, got %q", tool.InputSchema.Type)
	}
	if _, ok := tool.InputSchema.Properties["path"]; !ok {
		t.Errorf("schema missing path property")
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "path" {
		t.Errorf("unexpected required list: %v", tool.InputSchema.Required)
	}
	if tool.InputSchema.AdditionalProperties == nil || *tool.InputSchema.AdditionalProperties {
		t.Errorf("additionalProperties not carried through")
	}
}

func TestNormalizeTool_LegacyParameters(t *testing.T) {
	raw := RawTool{
		Name:        "run_command",
		Description: "Run a shell command",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd": map[string]any{"type": "string"},
			},
			"required": []string{"cmd"},
		},
	}
	tool, err := NormalizeTool(raw)
	if err != nil {
		t.Fatalf("NormalizeTool failed: %v", err)
	}
	if _, ok := tool.InputSchema.Properties["cmd"]; !ok {
		t.Errorf("parameters alias was not folded into input_schema")
	}
}

func TestNormalizeTool_MissingBothFails(t *testing.T) {
	_, err := NormalizeTool(RawTool{Name: "broken"})
	if err == nil {
		t.Fatalf("expected SchemaError for tool with no schema")
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if se.Tool != "broken" {
		t.Errorf("error should name the tool, got %q", se.Tool)
	}
}

func TestNormalizeTools_PreservesOrder(t *testing.T) {
	raws := []RawTool{}
	names := []string{"alpha", "bravo", "charlie", "delta"}
	for _, n := range names {
		raws = append(raws, RawTool{
			Name:        n,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	tools, err := NormalizeTools(raws)
	if err != nil {
		t.Fatalf("NormalizeTools failed: %v", err)
	}
	for i, n := range names {
		if tools[i].Name != n {
			t.Errorf("position %d: expected %q, got %q", i, n, tools[i].Name)
		}
	}
}

func TestToOpenAITools_RoundTripsNameDescription(t *testing.T) {
	tool, _ := NormalizeTool(sampleRawTool())
	out := ToOpenAITools([]ToolSchema{tool})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	fn := out[0].Function
	if fn.Name != tool.Name || fn.Description != tool.Description {
		t.Errorf("name/description changed in conversion: %q %q", fn.Name, fn.Description)
	}
	params, ok := fn.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters is not a map")
	}
	if params["type"] != "object" {
		t.Errorf("expected object type, got %v", params["type"])
	}
}

func TestToAnthropicTools_RoundTripsNameDescription(t *testing.T) {
	tool, _ := NormalizeTool(sampleRawTool())
	out := ToAnthropicTools([]ToolSchema{tool})
	if len(out) != 1 || out[0].OfTool == nil {
		t.Fatalf("expected 1 tool param")
	}
	tp := out[0].OfTool
	if tp.Name != tool.Name {
		t.Errorf("name changed: %q", tp.Name)
	}
	props, ok := tp.InputSchema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("properties is not a map")
	}
	if _, ok := props["path"]; !ok {
		t.Errorf("path property missing")
	}
}

func TestToGeminiDeclarations_UppercasesTypeAndDropsAdditionalProperties(t *testing.T) {
	tool, _ := NormalizeTool(sampleRawTool())
	out := ToGeminiDeclarations([]ToolSchema{tool})
	if len(out) != 1 || len(out[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected 1 declaration")
	}
	decl := out[0].FunctionDeclarations[0]
	if decl.Name != tool.Name || decl.Description != tool.Description {
		t.Errorf("name/description changed: %q %q", decl.Name, decl.Description)
	}
	if decl.Parameters.Type != genai.TypeObject {
		t.Errorf("expected OBJECT type token, got %v", decl.Parameters.Type)
	}
	if decl.Parameters.Properties["path"].Type != genai.TypeString {
		t.Errorf("expected STRING type token for path")
	}
	if decl.Parameters.Properties["lines"].Type != genai.TypeInteger {
		t.Errorf("expected INTEGER type token for lines")
	}
}

func TestToGeminiDeclarations_PreservesOrder(t *testing.T) {
	tools := []ToolSchema{
		{Name: "one", InputSchema: InputSchema{Type: "object"}},
		{Name: "two", InputSchema: InputSchema{Type: "object"}},
		{Name: "three", InputSchema: InputSchema{Type: "object"}},
	}
	out := ToGeminiDeclarations(tools)
	decls := out[0].FunctionDeclarations
	for i, want := range []string{"one", "two", "three"} {
		if decls[i].Name != want {
			t.Errorf("position %d: expected %q, got %q", i, want, decls[i].Name)
		}
	}
}
