// Package tools is the Tool Execution Layer: built-in tools translate a
// ToolCall into side effects and a ToolResult, under approval and sandbox
// policy (§4.2). api.Tool is the contract; this file holds the shared
// schema-building and argument-extraction helpers every built-in uses.
package tools

import (
	"fmt"

	"AgentCore/pkg/engine/api"
)

// ParameterDef describes one property of a tool's JSON-Schema parameters
// object.
type ParameterDef struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Items       map[string]any // for Type == "array"
	Enum        []string
}

// schemaFor builds the condensed JSON Schema §6 requires tools to emit
// verbatim to models.
func schemaFor(params []ParameterDef) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Items != nil {
			prop["items"] = p.Items
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func descriptor(name, description string, params []ParameterDef, kind api.ToolKind, risk api.RiskLevel) api.ToolDescriptor {
	return api.ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  schemaFor(params),
		Kind:        kind,
		Risk:        risk,
	}
}

func ok(content string) api.ToolResult {
	return api.ToolResult{Content: content, Success: true}
}

func okStructured(content string, structured any) api.ToolResult {
	return api.ToolResult{Content: content, Success: true, Structured: structured}
}

func fail(err error) api.ToolResult {
	if err == nil {
		return api.ToolResult{Content: "unknown error", Success: false}
	}
	return api.ToolResult{Content: err.Error(), Success: false}
}

func failf(format string, a ...any) api.ToolResult {
	return api.ToolResult{Content: fmt.Sprintf(format, a...), Success: false}
}

func stringArg(args api.Args, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func intArg(args api.Args, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func boolArg(args api.Args, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func stringSliceArg(args api.Args, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
