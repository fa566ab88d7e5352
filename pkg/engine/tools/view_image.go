package tools

import (
	"context"

	"AgentCore/pkg/engine/api"
)

// ViewImageTool is the `view_image` built-in: it acknowledges a local
// image path and returns it as structured output. It does not add the
// image to the next model input. It never executes anything and carries
// no approval gate (§4.2's table lists its sandbox requirement as N/A).
type ViewImageTool struct{}

// NewViewImageTool constructs the view_image tool.
func NewViewImageTool() *ViewImageTool { return &ViewImageTool{} }

func (t *ViewImageTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"view_image",
		"Attach a local image file to the next turn so the model can see it.",
		[]ParameterDef{
			{Name: "path", Type: "string", Description: "Absolute path to the image file", Required: true},
		},
		api.ToolKindFunction,
		api.RiskNone,
	)
}

func (t *ViewImageTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	path := stringArg(inv.Args, "path", "")
	if path == "" {
		return failf("path is required")
	}
	// This tool only validates the argument and acknowledges the request;
	// no component reads the image bytes or builds an image part from a
	// view_image result.
	return okStructured("Image attached: "+path, map[string]string{"path": path})
}
