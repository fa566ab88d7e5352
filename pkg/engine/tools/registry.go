package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/sandbox"
)

// Registry holds the built-in tools the Session Core dispatches through,
// compiling each tool's JSON Schema once at registration time so argument
// validation at dispatch time is cheap.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]api.Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]api.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its descriptor's JSON Schema for later
// argument validation. Returns an error if the name is already taken or
// the schema fails to compile.
func (r *Registry) Register(tool api.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := tool.Descriptor()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool already registered: %s", desc.Name)
	}

	schema, err := compileSchema(desc.Name, desc.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", desc.Name, err)
	}

	r.tools[desc.Name] = tool
	r.schemas[desc.Name] = schema
	return nil
}

// MustRegister adds a tool, panicking on error (only used during the
// fixed, compile-time-known built-in set-up).
func (r *Registry) MustRegister(tool api.Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (api.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool's descriptor, in name order — the
// list handed to the Model Transport as the request's "tools" array.
func (r *Registry) All() []api.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks rawArgs against name's compiled schema, returning a
// *api.Error of KindSchemaViolation on mismatch (§7).
func (r *Registry) Validate(name string, rawArgs json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return api.NewError(api.KindSchemaViolation, fmt.Sprintf("unknown tool: %s", name), nil)
	}

	var instance any
	if len(rawArgs) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(rawArgs, &instance); err != nil {
		return api.NewError(api.KindSchemaViolation, "arguments are not valid JSON", err)
	}

	if err := schema.Validate(instance); err != nil {
		return api.NewError(api.KindSchemaViolation, err.Error(), err)
	}
	return nil
}

// Dispatch validates rawArgs against name's schema, decodes them into
// api.Args, and hands the call to the registered tool. Any panic inside
// Handle is recovered and converted into a failed ToolResult, per §4.1's
// "the Session Core itself is panic-free by contract".
func (r *Registry) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage, inv api.Invocation) (result api.ToolResult, err error) {
	tool, ok := r.Get(name)
	if !ok {
		return api.ToolResult{}, api.NewError(api.KindSchemaViolation, fmt.Sprintf("unknown tool: %s", name), nil)
	}
	if verr := r.Validate(name, rawArgs); verr != nil {
		return api.ToolResult{}, verr
	}

	var args api.Args
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return api.ToolResult{}, api.NewError(api.KindSchemaViolation, "arguments are not valid JSON", err)
		}
	} else {
		args = api.Args{}
	}
	inv.Args = args

	defer func() {
		if p := recover(); p != nil {
			result = api.ToolResult{Content: fmt.Sprintf("tool panicked: %v", p), Success: false}
			err = nil
		}
	}()

	return tool.Handle(ctx, inv), nil
}

func compileSchema(name string, params any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(url)
}

// BuiltinOptions carries the shared collaborators the built-in tool set
// needs: the Sandbox Gateway, a session-id minter, and the actionlint
// validator's configuration.
type BuiltinOptions struct {
	Sandbox       *sandbox.Gateway
	SandboxPolicy api.SandboxPolicy
	SessionIDs    func() int32
	ActionlintCfg ActionlintConfig
	CodexFlavored bool
}

// DefaultRegistry constructs a Registry with every built-in tool wired for
// workspaceRoot (§4.2's table).
func DefaultRegistry(workspaceRoot string, opts BuiltinOptions) *Registry {
	r := NewRegistry()
	execs := newUnifiedExecManager(opts.SessionIDs)

	r.MustRegister(NewReadFileTool(workspaceRoot))
	r.MustRegister(NewShellTool(workspaceRoot, opts.Sandbox, opts.SandboxPolicy, opts.CodexFlavored))
	r.MustRegister(NewExecCommandTool(workspaceRoot, execs))
	r.MustRegister(NewWriteStdinTool(execs))
	r.MustRegister(NewApplyPatchTool(workspaceRoot, opts.ActionlintCfg))
	r.MustRegister(NewViewImageTool())
	r.MustRegister(NewUpdatePlanTool())
	r.MustRegister(NewWebSearchTool())
	return r
}
