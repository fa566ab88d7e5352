// Package runtime implements the Session Core: the turn state machine that
// drives one conversation, dispatches tool calls under policy, and emits
// a totally-ordered stream of UiEvents.
//
// Grounded on the teacher's pkg/engine/runtime/{engine.go,turn_runner.go},
// generalized from the teacher's LLMMessage/tool_calls turn loop to this
// repo's ResponseItem/ToolCall vocabulary and the OrderKey-stamped Event
// Bus described in SPEC_FULL.md §4.1/§4.4.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/approval"
	"AgentCore/pkg/engine/clock"
	"AgentCore/pkg/engine/policy"
	"AgentCore/pkg/engine/store"
	"AgentCore/pkg/engine/tools"
	"AgentCore/pkg/engine/transport"
)

// ModelConfig is the small slice of per-session model parameters the
// Session Core feeds to the transport on every round.
type ModelConfig struct {
	Model            string
	Instructions     string
	ReasoningEffort  string
	SummaryVerbosity string
	// CodexFlavored selects the shell tool's structured-text output
	// format over generic JSON (§4.2).
	CodexFlavored bool
}

// Config carries every collaborator a Session needs. Stores default to
// file-backed implementations under WorkspaceRoot when nil.
type Config struct {
	WorkspaceRoot string
	ModelCfg      ModelConfig

	Clock     clock.Clock
	Transport *transport.Client
	Registry  *tools.Registry
	Policy    *policy.Policy
	Approver  approval.Handler

	Transcript *store.Transcript
	Bus        *store.Bus

	// UsageStore persists per-account token totals and rate-limit
	// snapshots (§3.1); nil disables usage persistence entirely.
	UsageStore *store.UsageStore
	AccountID  string
}

// Session implements api.Session: one conversation, one core-loop
// goroutine per active turn, backed by a persisted JSONL transcript and a
// live Event Bus.
type Session struct {
	id            string
	workspaceRoot string
	modelCfg      ModelConfig

	clock      clock.Clock
	transport  *transport.Client
	registry   *tools.Registry
	policy     *policy.Policy
	broker     *approval.Broker
	transcript *store.Transcript
	bus        *store.Bus

	usageStore *store.UsageStore
	accountID  string

	mu      sync.Mutex
	history []api.ResponseItem
	turn    *activeTurn
	closed  bool
}

// activeTurn tracks the one in-flight turn, if any.
type activeTurn struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Session for sessionID, replaying any persisted
// transcript from a prior process (§4.1's resume path).
func New(sessionID string, cfg Config) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runtime: Config.Registry is required")
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.New(api.PresetAuto)
	}
	if cfg.Bus == nil {
		cfg.Bus = store.NewBus()
	}

	history, err := replayHistory(cfg.Transcript, sessionID)
	if err != nil {
		return nil, err
	}

	var broker *approval.Broker
	if cfg.Approver != nil {
		broker = approval.New(cfg.Approver)
	}

	return &Session{
		id:            sessionID,
		workspaceRoot: cfg.WorkspaceRoot,
		modelCfg:      cfg.ModelCfg,
		clock:         cfg.Clock,
		transport:     cfg.Transport,
		registry:      cfg.Registry,
		policy:        cfg.Policy,
		broker:        broker,
		transcript:    cfg.Transcript,
		bus:           cfg.Bus,
		usageStore:    cfg.UsageStore,
		accountID:     cfg.AccountID,
		history:       history,
	}, nil
}

func replayHistory(transcriptStore *store.Transcript, sessionID string) ([]api.ResponseItem, error) {
	if transcriptStore == nil {
		return nil, nil
	}
	return transcriptStore.Load(context.Background(), sessionID)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// api.Session
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Submit begins a new turn. It fails with api.ErrBusy when a turn is
// already active.
func (s *Session) Submit(ctx context.Context, input api.UserInput) (*api.TurnHandle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session closed")
	}
	if s.turn != nil {
		s.mu.Unlock()
		return nil, api.ErrBusy
	}

	turnID := s.clock.NewID()
	turnCtx, cancel := context.WithCancel(context.Background())
	turn := &activeTurn{id: turnID, cancel: cancel, done: make(chan struct{})}
	s.turn = turn
	s.mu.Unlock()

	startedAt := s.clock.Now()
	go s.runTurn(turnCtx, turn, input)

	return &api.TurnHandle{TurnID: turnID, StartedAt: startedAt}, nil
}

// Interrupt cancels the current turn. Idempotent: a no-op when no turn is
// active, and safe to call more than once on the same turn.
func (s *Session) Interrupt() {
	s.mu.Lock()
	t := s.turn
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Events returns the session's ordered outbound event stream.
func (s *Session) Events() api.EventStream {
	return s.bus.Subscribe()
}

// Close releases the session's resources. Any active turn is interrupted
// first and awaited so the transcript reaches a quiescent state.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	t := s.turn
	s.mu.Unlock()

	if t != nil {
		t.cancel()
		<-t.done
	}
	s.bus.Close()
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn loop
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// runTurn owns every ConversationHistory mutation for its turn, per §5's
// "single core-loop goroutine" rule, and runs the tool-call feedback loop
// described in §4.1 until the model completes without unresolved calls, a
// fatal error occurs, or the turn is interrupted.
func (s *Session) runTurn(ctx context.Context, turn *activeTurn, input api.UserInput) {
	defer close(turn.done)
	defer s.clearTurn(turn)

	preTurnLen := s.historyLen()

	userItem := api.ResponseItem{
		Kind:     api.ItemMessage,
		Role:     api.RoleUser,
		Content:  textAndImageParts(input),
		OrderKey: s.syntheticOrderKey(0),
		MintedAt: s.clock.Now(),
	}
	s.appendHistory(userItem)
	s.emit(api.UiEvent{TurnID: turn.id, Type: api.EvUserMessage, OrderKey: userItem.OrderKey, Text: input.Text})

	tracker := &api.TurnDiffTracker{}

	for {
		requestOrdinal := s.clock.NextRequestOrdinal()
		outcome, err := s.runModelRound(ctx, turn.id, requestOrdinal, tracker)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.emit(api.UiEvent{TurnID: turn.id, Type: api.EvAborted, OrderKey: s.syntheticOrderKey(requestOrdinal)})
				return
			}
			// Fatal transport error: truncate back to the pre-turn
			// snapshot and surface a user-visible error (§4.1).
			s.truncateHistoryTo(preTurnLen)
			s.emit(api.UiEvent{
				TurnID:   turn.id,
				Type:     api.EvError,
				OrderKey: s.syntheticOrderKey(requestOrdinal),
				Error:    &api.ErrorPayload{Kind: kindOf(err), Message: err.Error()},
			})
			return
		}
		if !outcome.hasToolCalls {
			s.emit(api.UiEvent{TurnID: turn.id, Type: api.EvTurnComplete, OrderKey: s.syntheticOrderKey(requestOrdinal)})
			return
		}
		// Tool results were already injected into history; loop to
		// re-open the model stream with the accumulated input rather
		// than starting a new user turn.
	}
}

func (s *Session) clearTurn(turn *activeTurn) {
	s.mu.Lock()
	if s.turn == turn {
		s.turn = nil
	}
	s.mu.Unlock()
}

func kindOf(err error) string {
	var e *api.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return string(api.KindInternal)
}

func textAndImageParts(input api.UserInput) []api.ContentPart {
	parts := []api.ContentPart{{Text: input.Text}}
	for _, img := range input.Images {
		parts = append(parts, api.ContentPart{ImageRef: img})
	}
	return parts
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// One model round
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type roundOutcome struct {
	hasToolCalls bool
}

// pendingToolCall is one tool-call output item finalized during a round,
// awaiting dispatch.
type pendingToolCall struct {
	CallID      string
	ToolName    string
	Arguments   json.RawMessage
	OutputIndex uint32
	Kind        api.ResponseItemKind
}

// itemBuf accumulates streamed deltas for one in-flight output item.
type itemBuf struct {
	kind        api.ResponseItemKind
	toolName    string
	callID      string
	outputIndex uint32
	text        strings.Builder
	args        strings.Builder
}

// runModelRound opens one model stream (with its own internal transport
// retries) and, on success, dispatches any tool calls the response
// produced, appending their results to history before returning. Finalized
// message/reasoning/tool-call items are only committed to history once the
// whole round succeeds, so a retried attempt never double-commits partial
// content from an earlier failed attempt (§4.3's idempotency rule,
// simplified: this transport does not resend a partially-consumed prompt
// mid-round, so the safe approach is "commit nothing until the round as a
// whole completes").
func (s *Session) runModelRound(ctx context.Context, turnID string, requestOrdinal uint64, tracker *api.TurnDiffTracker) (roundOutcome, error) {
	prompt := buildPrompt(s.modelCfg, s.snapshotHistory(), s.registry.All())

	buffers := map[string]*itemBuf{}
	var finalized []api.ResponseItem
	var toolCalls []pendingToolCall
	var usage api.TokenUsage
	var rateLimit *api.RateLimitSnapshot

	onReset := func() {
		buffers = map[string]*itemBuf{}
		finalized = nil
		toolCalls = nil
	}

	onEvent := func(ev transport.ModelEvent) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch ev.Kind {
		case transport.EventResponseCreated:
			return nil

		case transport.EventItemAdded:
			buffers[ev.ItemID] = &itemBuf{kind: ev.ItemKind, toolName: ev.ToolName, callID: ev.CallID, outputIndex: ev.OutputIndex}
			return nil

		case transport.EventTextDelta:
			buf := s.bufFor(buffers, ev.ItemID, ev.OutputIndex)
			buf.text.WriteString(ev.Delta)
			s.emit(api.UiEvent{
				TurnID:   turnID,
				Type:     api.EvAssistantDelta,
				OrderKey: orderKey(requestOrdinal, ev.OutputIndex, ev.SequenceNumber, s.clock.MintSeq()),
				Text:     ev.Delta,
			})
			return nil

		case transport.EventReasoningDelta:
			buf := s.bufFor(buffers, ev.ItemID, ev.OutputIndex)
			buf.text.WriteString(ev.Delta)
			s.emit(api.UiEvent{
				TurnID:   turnID,
				Type:     api.EvReasoningDelta,
				OrderKey: orderKey(requestOrdinal, ev.OutputIndex, ev.SequenceNumber, s.clock.MintSeq()),
				Text:     ev.Delta,
			})
			return nil

		case transport.EventFunctionArgsDelta:
			buf := s.bufFor(buffers, ev.ItemID, ev.OutputIndex)
			buf.args.WriteString(ev.Delta)
			return nil

		case transport.EventItemDone:
			buf, ok := buffers[ev.ItemID]
			if !ok {
				buf = &itemBuf{kind: ev.ItemKind, outputIndex: ev.OutputIndex}
			}
			kind := ev.ItemKind
			if kind == "" {
				kind = buf.kind
			}

			switch kind {
			case api.ItemMessage:
				text := buf.text.String()
				key := orderKey(requestOrdinal, buf.outputIndex, ev.SequenceNumber, s.clock.MintSeq())
				finalized = append(finalized, api.ResponseItem{
					Kind: api.ItemMessage, Role: api.RoleAssistant,
					Content: []api.ContentPart{{Text: text}}, OrderKey: key, MintedAt: s.clock.Now(),
				})
				s.emit(api.UiEvent{TurnID: turnID, Type: api.EvAssistantFinal, OrderKey: key, Text: text})

			case api.ItemReasoning:
				summary := buf.text.String()
				key := orderKey(requestOrdinal, buf.outputIndex, ev.SequenceNumber, s.clock.MintSeq())
				finalized = append(finalized, api.ResponseItem{
					Kind: api.ItemReasoning, SummaryText: summary, OrderKey: key, MintedAt: s.clock.Now(),
				})
				s.emit(api.UiEvent{TurnID: turnID, Type: api.EvReasoningFinal, OrderKey: key, Text: summary})

			case api.ItemToolCall, api.ItemLocalShellCall:
				callID := ev.CallID
				if callID == "" {
					callID = buf.callID
				}
				toolName := ev.ToolName
				if toolName == "" {
					toolName = buf.toolName
				}
				args := json.RawMessage(buf.args.String())
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				toolCalls = append(toolCalls, pendingToolCall{
					CallID: callID, ToolName: toolName, Arguments: args,
					OutputIndex: buf.outputIndex, Kind: kind,
				})
				if toolName == "update_plan" {
					s.emitPlanUpdate(turnID, requestOrdinal, args)
				}
			}
			delete(buffers, ev.ItemID)
			return nil

		case transport.EventCompleted:
			usage = ev.Usage
			rateLimit = ev.RateLimit
			return nil
		}
		return nil
	}

	onWait := func(wait time.Duration, resetsAt time.Time) {
		s.emit(api.UiEvent{
			TurnID: turnID, Type: api.EvBackgroundEvent,
			OrderKey:   s.syntheticOrderKey(requestOrdinal),
			Background: &api.BackgroundPayload{Message: fmt.Sprintf("rate limited; waiting %s until %s", wait.Round(time.Second), resetsAt.Format(time.RFC3339))},
		})
	}

	if err := s.transport.Stream(ctx, prompt, onEvent, onReset, onWait); err != nil {
		return roundOutcome{}, err
	}

	s.appendHistory(finalized...)
	s.emit(api.UiEvent{
		TurnID: turnID, Type: api.EvTokenUsageUpdate,
		OrderKey:   s.syntheticOrderKey(requestOrdinal),
		TokenUsage: &usage,
	})
	if rateLimit != nil {
		s.emit(api.UiEvent{
			TurnID: turnID, Type: api.EvRateLimitUpdate,
			OrderKey:  s.syntheticOrderKey(requestOrdinal),
			RateLimit: rateLimit,
		})
	}
	s.recordUsage(usage, rateLimit)

	if len(toolCalls) == 0 {
		return roundOutcome{hasToolCalls: false}, nil
	}

	s.dispatchToolCalls(ctx, turnID, requestOrdinal, toolCalls, tracker)
	return roundOutcome{hasToolCalls: true}, nil
}

func (s *Session) bufFor(buffers map[string]*itemBuf, itemID string, outputIndex uint32) *itemBuf {
	buf, ok := buffers[itemID]
	if !ok {
		buf = &itemBuf{outputIndex: outputIndex}
		buffers[itemID] = buf
	}
	return buf
}

// recordUsage persists this round's token delta and rate-limit snapshot to
// the account usage file (§3.1). Best-effort: a usage-file failure is
// swallowed rather than failing the turn, since usage persistence is
// advisory bookkeeping, not part of the model conversation.
func (s *Session) recordUsage(usage api.TokenUsage, rateLimit *api.RateLimitSnapshot) {
	if s.usageStore == nil {
		return
	}
	accountID := s.accountID
	if accountID == "" {
		accountID = "default"
	}

	var info *store.RateLimitInfo
	if rateLimit != nil && rateLimit.Primary != nil {
		info = &store.RateLimitInfo{
			PrimaryUsedPercent:   rateLimit.Primary.UsedPercent,
			PrimaryWindowMinutes: int(rateLimit.Primary.WindowSecond / 60),
			ResetsAt:             rateLimit.Primary.ResetsAt,
		}
	}

	delta := store.TokenTotals{
		InputTokens:           usage.InputTokens,
		CachedInputTokens:     usage.CachedInputTokens,
		OutputTokens:          usage.OutputTokens,
		ReasoningOutputTokens: usage.ReasoningOutputTokens,
		TotalTokens:           usage.TotalTokens,
	}
	_, _ = s.usageStore.Record(accountID, delta, info, s.clock.Now())
}

func (s *Session) emitPlanUpdate(turnID string, requestOrdinal uint64, args json.RawMessage) {
	name, steps, err := tools.NormalizedPlan(args)
	if err != nil {
		return
	}
	s.emit(api.UiEvent{
		TurnID: turnID, Type: api.EvPlanUpdate,
		OrderKey:   s.syntheticOrderKey(requestOrdinal),
		PlanUpdate: &api.PlanUpdatePayload{Name: name, Plan: steps},
	})
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tool dispatch
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

type toolOutcome struct {
	content  string
	success  bool
	timedOut bool
}

// dispatchToolCalls runs every call in toolCalls as a sibling goroutine
// joined on one WaitGroup (§4.1's concurrent tool dispatch rule):
// ToolBegin events and history's tool_call items are emitted in
// output_index order at dispatch time, before any goroutine starts;
// ToolEnd events and tool_result history items follow in completion
// order as each goroutine finishes, each still carrying the OrderKey
// derived from its own call's output_index so the Transcript Ordering
// Model resorts them into request order.
func (s *Session) dispatchToolCalls(ctx context.Context, turnID string, requestOrdinal uint64, calls []pendingToolCall, tracker *api.TurnDiffTracker) {
	keys := make([]api.OrderKey, len(calls))
	for i, tc := range calls {
		key := orderKey(requestOrdinal, tc.OutputIndex, 0, s.clock.MintSeq())
		keys[i] = key

		s.appendHistory(api.ResponseItem{
			Kind: tc.Kind, CallID: tc.CallID, ToolName: tc.ToolName,
			Arguments: tc.Arguments, OrderKey: key, MintedAt: s.clock.Now(),
		})

		var argsMap map[string]any
		_ = json.Unmarshal(tc.Arguments, &argsMap)
		preview := s.buildPreview(ctx, turnID, tc, argsMap, tracker)

		s.emit(api.UiEvent{
			TurnID: turnID, Type: api.EvToolBegin, OrderKey: key,
			ToolBegin: &api.ToolBeginPayload{CallID: tc.CallID, ToolName: tc.ToolName, Args: argsMap, Preview: preview},
		})

		if tc.ToolName == "apply_patch" {
			s.emit(api.UiEvent{
				TurnID: turnID, Type: api.EvPatchApplyBegin, OrderKey: key,
				PatchBegin: &api.PatchBeginPayload{Changes: parsePatchChangeKinds(tc.Arguments)},
			})
		}
	}

	results := make([]toolOutcome, len(calls))
	finished := make(chan int, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc pendingToolCall) {
			defer wg.Done()
			results[i] = s.dispatchOne(ctx, turnID, tc, tracker)
			finished <- i
		}(i, tc)
	}
	go func() { wg.Wait(); close(finished) }()

	for i := range finished {
		tc := calls[i]
		res := results[i]
		key := keys[i]
		s.emit(api.UiEvent{
			TurnID: turnID, Type: api.EvToolEnd, OrderKey: key,
			ToolEnd: &api.ToolEndPayload{CallID: tc.CallID, ToolName: tc.ToolName, Content: res.content, Success: res.success, TimedOut: res.timedOut},
		})
		success := res.success
		s.appendHistory(api.ResponseItem{
			Kind: api.ItemToolResult, CallID: tc.CallID, ResultContent: res.content,
			Success: &success, OrderKey: key, MintedAt: s.clock.Now(),
		})

		if tc.ToolName == "apply_patch" {
			s.emit(api.UiEvent{
				TurnID: turnID, Type: api.EvPatchApplyEnd, OrderKey: key,
				PatchEnd: &api.PatchEndPayload{Success: res.success, Message: res.content},
			})
			if res.success {
				s.emit(api.UiEvent{
					TurnID: turnID, Type: api.EvTurnDiff, OrderKey: key,
					TurnDiff: &api.TurnDiffPayload{UnifiedDiff: unifiedDiffOf(tracker.Changes())},
				})
			}
			// A failed apply_patch suppresses TurnDiff entirely (§4.2).
		}
	}
}

// dispatchOne runs the approval gate (if required) and hands the call to
// the registry. A result is discarded in favor of a synthetic
// "interrupted" outcome if the turn's context was canceled, regardless of
// whether the tool itself returned a materialized result (§5).
func (s *Session) dispatchOne(ctx context.Context, turnID string, tc pendingToolCall, tracker *api.TurnDiffTracker) toolOutcome {
	var argsMap map[string]any
	_ = json.Unmarshal(tc.Arguments, &argsMap)

	escalated, _ := argsMap["with_escalated_privileges"].(bool)
	if s.policy.NeedApproval(tc.ToolName, escalated, false) && s.broker != nil {
		preview := s.buildPreview(ctx, turnID, tc, argsMap, tracker)
		decision := s.broker.Request(ctx, api.ApprovalRequest{
			RequestID:  s.clock.NewID(),
			ToolCallID: tc.CallID,
			Kind:       approvalKindFor(tc.ToolName, escalated),
			ToolName:   tc.ToolName,
			Args:       argsMap,
			Preview:    preview,
		})
		switch decision.Kind {
		case api.DecisionDeny:
			return toolOutcome{content: "denied by user", success: false}
		case api.DecisionApproveForSession:
			s.policy.AllowSession(tc.ToolName)
		}
	}

	if ctx.Err() != nil {
		return toolOutcome{content: "interrupted", success: false}
	}

	inv := api.Invocation{CallID: tc.CallID, Args: argsMap, Cwd: s.workspaceRoot, TurnID: turnID, Tracker: tracker}
	result, err := s.registry.Dispatch(ctx, tc.ToolName, tc.Arguments, inv)

	if ctx.Err() != nil {
		return toolOutcome{content: "interrupted", success: false}
	}

	if isSandboxDenial(err) {
		return s.retryOutsideSandbox(ctx, turnID, tc, argsMap, tracker)
	}

	if err != nil {
		return toolOutcome{content: err.Error(), success: false}
	}

	content := result.Content
	if result.Structured != nil {
		if raw, merr := json.Marshal(result.Structured); merr == nil {
			content = string(raw)
		}
	}
	return toolOutcome{content: content, success: result.Success, timedOut: result.TimedOut}
}

// isSandboxDenial reports whether err is the Sandbox Gateway reporting a
// policy/directory-boundary denial (as opposed to some other tool-level
// failure), the trigger condition for the sandbox-retry flow (§4.2, E4).
func isSandboxDenial(err error) bool {
	var e *api.Error
	return errors.As(err, &e) && e.Kind == api.KindSandbox
}

// retryOutsideSandbox implements E4's sandbox-denial flow: a sandboxed
// attempt that failed with KindSandbox re-checks NeedApproval with
// priorFailure=true (the ApprovalOnFailure branch policy.go otherwise
// never exercises) and, if approved, re-dispatches the same call with
// BypassSandbox set so it runs unconfined. A deny (or no broker to ask)
// surfaces the same "denied by user" outcome Deny produces pre-dispatch.
func (s *Session) retryOutsideSandbox(ctx context.Context, turnID string, tc pendingToolCall, argsMap map[string]any, tracker *api.TurnDiffTracker) toolOutcome {
	escalated, _ := argsMap["with_escalated_privileges"].(bool)
	if !s.policy.NeedApproval(tc.ToolName, escalated, true) || s.broker == nil {
		return toolOutcome{content: "denied by user", success: false}
	}

	preview := s.buildPreview(ctx, turnID, tc, argsMap, tracker)
	decision := s.broker.Request(ctx, api.ApprovalRequest{
		RequestID:  s.clock.NewID(),
		ToolCallID: tc.CallID,
		Kind:       api.ApprovalKindSandboxRetry,
		ToolName:   tc.ToolName,
		Args:       argsMap,
		Preview:    preview,
	})
	if decision.Kind == api.DecisionDeny {
		return toolOutcome{content: "denied by user", success: false}
	}
	if decision.Kind == api.DecisionApproveForSession {
		s.policy.AllowSession(tc.ToolName)
	}

	if ctx.Err() != nil {
		return toolOutcome{content: "interrupted", success: false}
	}

	inv := api.Invocation{CallID: tc.CallID, Args: argsMap, Cwd: s.workspaceRoot, TurnID: turnID, Tracker: tracker, BypassSandbox: true}
	result, err := s.registry.Dispatch(ctx, tc.ToolName, tc.Arguments, inv)
	if ctx.Err() != nil {
		return toolOutcome{content: "interrupted", success: false}
	}
	if err != nil {
		return toolOutcome{content: err.Error(), success: false}
	}

	content := result.Content
	if result.Structured != nil {
		if raw, merr := json.Marshal(result.Structured); merr == nil {
			content = string(raw)
		}
	}
	return toolOutcome{content: content, success: result.Success, timedOut: result.TimedOut}
}

func (s *Session) buildPreview(ctx context.Context, turnID string, tc pendingToolCall, argsMap map[string]any, tracker *api.TurnDiffTracker) *api.ApprovalPreview {
	tool, ok := s.registry.Get(tc.ToolName)
	if !ok {
		return nil
	}
	previewer, ok := tool.(api.Previewer)
	if !ok {
		return nil
	}
	inv := api.Invocation{CallID: tc.CallID, Args: argsMap, Cwd: s.workspaceRoot, TurnID: turnID, Tracker: tracker}
	return previewer.Preview(ctx, inv)
}

func approvalKindFor(toolName string, escalated bool) api.ApprovalKind {
	switch {
	case escalated:
		return api.ApprovalKindEscalation
	case toolName == "apply_patch":
		return api.ApprovalKindPatch
	default:
		return api.ApprovalKindShell
	}
}

// parsePatchChangeKinds best-effort-parses an apply_patch call's raw
// arguments into a path->kind map for the PatchApplyBegin preview; a
// parse failure just yields an empty map rather than blocking the event.
func parsePatchChangeKinds(args json.RawMessage) map[string]api.FileChangeKind {
	var parsed struct {
		Changes []struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"changes"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil
	}
	out := make(map[string]api.FileChangeKind, len(parsed.Changes))
	for _, c := range parsed.Changes {
		out[c.Path] = api.FileChangeKind(c.Kind)
	}
	return out
}

// unifiedDiffOf renders a minimal unified-diff-shaped summary of the
// turn's accumulated file changes. A full line-level diff algorithm is out
// of scope; this preserves the event's contract (a string the UI can
// display) grounded on the teacher's diff summary in cmd/ui/printer.go.
func unifiedDiffOf(changes []api.FileChange) string {
	var b strings.Builder
	for _, c := range changes {
		switch c.Kind {
		case api.FileAdd:
			fmt.Fprintf(&b, "+++ %s (added)\n", c.Path)
		case api.FileUpdate:
			fmt.Fprintf(&b, "--- %s\n+++ %s (updated)\n", c.Path, c.Path)
		case api.FileDelete:
			fmt.Fprintf(&b, "--- %s (deleted)\n", c.Path)
		}
	}
	return b.String()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// History helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (s *Session) appendHistory(items ...api.ResponseItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	s.history = append(s.history, items...)
	s.mu.Unlock()

	if s.transcript == nil {
		return
	}
	for _, it := range items {
		_ = s.transcript.Append(context.Background(), s.id, it)
	}
}

func (s *Session) snapshotHistory() []api.ResponseItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ResponseItem, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) truncateHistoryTo(n int) {
	s.mu.Lock()
	if n < len(s.history) {
		s.history = s.history[:n]
	}
	s.mu.Unlock()
	if s.transcript != nil {
		_ = s.transcript.Replace(context.Background(), s.id, s.snapshotHistory())
	}
}

func (s *Session) emit(ev api.UiEvent) {
	ev.SessionID = s.id
	ev.Ts = s.clock.Now()
	s.bus.Publish(ev)
}

// orderKey builds the total-order sort key described in §4.4.
func orderKey(requestOrdinal uint64, outputIndex uint32, sequenceNumber uint64, mintSeq uint64) api.OrderKey {
	return api.OrderKey{RequestOrdinal: requestOrdinal, OutputIndex: outputIndex, SequenceNumber: sequenceNumber, MintSeq: mintSeq}
}

// syntheticOrderKey mints a key for an event with no server-assigned
// output_index (background/completion/lifecycle events), per §4.4.
func (s *Session) syntheticOrderKey(requestOrdinal uint64) api.OrderKey {
	return api.OrderKey{
		RequestOrdinal: requestOrdinal,
		OutputIndex:    api.UnassignedOutputIndex,
		SequenceNumber: s.clock.NextSyntheticSeq(requestOrdinal),
		MintSeq:        s.clock.MintSeq(),
	}
}

var _ api.Session = (*Session)(nil)
