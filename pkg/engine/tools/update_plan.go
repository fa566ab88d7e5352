package tools

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"AgentCore/pkg/engine/api"
)

// knownAcronyms is the curated list mined verbatim from
// codex-rs/core/src/plan_tool.rs's KNOWN_ACRONYMS (§3.1).
var knownAcronyms = map[string]bool{
	"AI": true, "API": true, "CLI": true, "CPU": true, "DB": true,
	"GPU": true, "HTTP": true, "HTTPS": true, "ID": true, "LLM": true,
	"SDK": true, "SQL": true, "TUI": true, "UI": true, "UX": true,
}

// UpdatePlanTool is the `update_plan` pseudo-tool: it records the model's
// plan without executing anything (§4.1/§4.2). The tool itself returns a
// fixed "Plan updated" result; the real payload is the PlanUpdate event
// the Session Core emits from the normalized arguments.
type UpdatePlanTool struct{}

// NewUpdatePlanTool constructs the update_plan tool.
func NewUpdatePlanTool() *UpdatePlanTool { return &UpdatePlanTool{} }

func (t *UpdatePlanTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"update_plan",
		"Updates the task plan. Provide an optional name and a list of plan items, each with a step and status. At most one step can be in_progress at a time.",
		[]ParameterDef{
			{Name: "name", Type: "string", Description: "2-5 word title describing the plan, e.g. 'Fix Box Rendering'"},
			{Name: "plan", Type: "array", Required: true, Description: "Ordered list of plan steps", Items: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"step":   map[string]any{"type": "string"},
					"status": map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
				},
				"required": []string{"step", "status"},
			}},
		},
		api.ToolKindFunction,
		api.RiskNone,
	)
}

type planItemArg struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

type updatePlanArgs struct {
	Name string        `json:"name,omitempty"`
	Plan []planItemArg `json:"plan"`
}

// NormalizedPlan parses and normalizes raw update_plan arguments into the
// PlanUpdatePayload the Session Core emits. Exported so the runtime
// package can reuse the same normalization for the PlanUpdate event
// without re-invoking the tool.
func NormalizedPlan(rawArgs json.RawMessage) (name string, steps []api.PlanStep, err error) {
	var args updatePlanArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return "", nil, err
	}

	name = normalizePlanName(args.Name)
	steps = make([]api.PlanStep, 0, len(args.Plan))
	for _, item := range args.Plan {
		steps = append(steps, api.PlanStep{Step: item.Step, Status: api.PlanStepStatus(item.Status)})
	}
	return name, steps, nil
}

func (t *UpdatePlanTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	if _, ok := inv.Args["plan"]; !ok {
		return failf("plan is required")
	}
	return ok("Plan updated")
}

// normalizePlanName title-cases a plan name, preserving known acronyms
// uppercase, exactly mirroring plan_tool.rs's normalize_plan_name.
func normalizePlanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	canonical := canonicalizeWordBoundaries(name)
	words := strings.Fields(canonical)
	if len(words) == 0 {
		return ""
	}

	formatted := make([]string, len(words))
	for i, w := range words {
		formatted[i] = formatPlanWord(w)
	}
	return strings.Join(formatted, " ")
}

type charKind int

const (
	kindStart charKind = iota
	kindUpper
	kindLower
	kindDigit
	kindOther
	kindSeparator
)

func classify(r rune) charKind {
	if unicode.IsSpace(r) || r == '_' || r == '-' || r == '/' || r == ':' || r == '.' {
		return kindSeparator
	}
	if r >= 'A' && r <= 'Z' {
		return kindUpper
	}
	if r >= 'a' && r <= 'z' {
		return kindLower
	}
	if r >= '0' && r <= '9' {
		return kindDigit
	}
	return kindOther
}

func shouldInsertSpace(prev, cur charKind) bool {
	switch {
	case prev == kindUpper && cur == kindLower:
	case prev == kindLower && cur == kindUpper:
	case prev == kindDigit && cur == kindUpper:
	case prev == kindDigit && cur == kindLower:
	case prev == kindUpper && cur == kindDigit:
	case prev == kindLower && cur == kindDigit:
	case prev == kindOther && cur == kindUpper:
	case prev == kindOther && cur == kindLower:
	case prev == kindOther && cur == kindDigit:
	default:
		return false
	}
	return true
}

// canonicalizeWordBoundaries inserts spaces at case/kind transitions and
// collapses separator runs to a single space, matching
// canonicalize_word_boundaries in plan_tool.rs.
func canonicalizeWordBoundaries(input string) string {
	var b strings.Builder
	prev := kindStart

	for _, r := range input {
		kind := classify(r)
		switch kind {
		case kindSeparator:
			s := b.String()
			if !strings.HasSuffix(s, " ") && s != "" {
				b.WriteByte(' ')
			}
			prev = kindSeparator
		default:
			if shouldInsertSpace(prev, kind) && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			prev = kind
		}
	}
	return strings.TrimSpace(b.String())
}

func formatPlanWord(word string) string {
	if word == "" {
		return ""
	}
	upper := strings.ToUpper(word)
	if knownAcronyms[upper] {
		return upper
	}
	runes := []rune(word)
	return strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
}
