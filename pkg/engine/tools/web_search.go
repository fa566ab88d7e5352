package tools

import (
	"context"

	"AgentCore/pkg/engine/api"
)

// WebSearchTool is the `web_search` built-in: it surfaces a model-issued
// search intent to the UI. No search is run, here or in the Session
// Core; this tool's job under the Tool Execution Layer is only to
// validate the query and let the call show up in the transcript like any
// other tool call (§4.2: no approval gate, sandbox requirement N/A).
type WebSearchTool struct{}

// NewWebSearchTool constructs the web_search tool.
func NewWebSearchTool() *WebSearchTool { return &WebSearchTool{} }

func (t *WebSearchTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"web_search",
		"Search the web for the given query and surface results to the model.",
		[]ParameterDef{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
		api.ToolKindFunction,
		api.RiskNone,
	)
}

func (t *WebSearchTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	query := stringArg(inv.Args, "query", "")
	if query == "" {
		return failf("query is required")
	}
	return okStructured("Search requested: "+query, map[string]string{"query": query})
}
