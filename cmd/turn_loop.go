package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"AgentCore/cmd/ui"
	"AgentCore/pkg/engine/api"
)

// runTurn submits one user message and drives the shared event stream
// until that turn reports completion, an error, or interruption.
// Grounded on the teacher's runTurnWithApprovals/consumeEventStream
// (cmd/turn_loop.go), generalized from the teacher's suspend/resume
// approval protocol to this repo's synchronously-blocking Approval
// Broker: approvals are resolved inside the Session Core's dispatch
// goroutine, so the CLI only ever needs to render events, never to
// answer a stream-carried approval event itself.
func runTurn(ctx context.Context, sess api.Session, stream api.EventStream, input api.UserInput) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle, err := sess.Submit(ctx, input)
	if err != nil {
		return err
	}

	cleanup := monitorCancellation(ctx, func() { sess.Interrupt(); cancel() })
	defer cleanup()

	stopSpinner, spinnerDone := ui.StartLoading("Thinking...")
	spinnerOpen := true
	closeSpinner := func() {
		if !spinnerOpen {
			return
		}
		spinnerOpen = false
		close(stopSpinner)
		<-spinnerDone
	}
	defer closeSpinner()

	prefixPrinted := false
	toolArgBuffer := ""

	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			if err == io.EOF || err == context.Canceled {
				return nil
			}
			return err
		}
		if ev.TurnID != handle.TurnID {
			continue
		}

		closeSpinner()

		switch ev.Type {
		case api.EvAssistantDelta:
			if toolArgBuffer != "" {
				ui.Print("\r\033[K")
				toolArgBuffer = ""
			}
			if !prefixPrinted {
				ui.Print("\n🤖 Agent: ")
				prefixPrinted = true
			}
			ui.Print(ev.Text)

		case api.EvReasoningDelta:
			// Kept lightweight to avoid UI spam; reasoning summaries are
			// only surfaced at their final event.

		case api.EvReasoningFinal:
			if strings.TrimSpace(ev.Text) != "" {
				ui.Printf("\n🤔 %s\n", ev.Text)
			}

		case api.EvToolBegin:
			if ev.ToolBegin == nil {
				continue
			}
			if toolArgBuffer != "" {
				ui.Print("\r\033[K")
				toolArgBuffer = ""
			}
			ui.Printf("\n\n🔧 tool_call %s\n", ev.ToolBegin.ToolName)

		case api.EvToolEnd:
			if ev.ToolEnd == nil {
				continue
			}
			status := "ok"
			if !ev.ToolEnd.Success {
				status = "error"
			}
			ui.Printf("\n🔧 tool_result %s (%s)\n", ev.ToolEnd.ToolName, status)
			if ev.ToolEnd.Content != "" {
				ui.Print(ev.ToolEnd.Content)
				if !strings.HasSuffix(ev.ToolEnd.Content, "\n") {
					ui.Print("\n")
				}
			}

		case api.EvPatchApplyEnd:
			if ev.PatchEnd != nil && !ev.PatchEnd.Success {
				ui.Printf("\n❌ patch failed: %s\n", ev.PatchEnd.Message)
			}

		case api.EvTurnDiff:
			if ev.TurnDiff != nil && ev.TurnDiff.UnifiedDiff != "" {
				ui.Printf("\n📝 turn diff:\n%s\n", ev.TurnDiff.UnifiedDiff)
			}

		case api.EvPlanUpdate:
			if ev.PlanUpdate != nil {
				renderPlan(*ev.PlanUpdate)
			}

		case api.EvBackgroundEvent:
			if ev.Background != nil {
				ui.Printf("\nℹ️  %s\n", ev.Background.Message)
			}

		case api.EvError:
			if prefixPrinted {
				ui.Print("\n")
			}
			if ev.Error != nil {
				return fmt.Errorf("%s: %s", ev.Error.Kind, ev.Error.Message)
			}
			return fmt.Errorf("unknown error")

		case api.EvAborted:
			if prefixPrinted {
				ui.Print("\n")
			}
			ui.Print("\n🛑 turn interrupted\n")
			return nil

		case api.EvTurnComplete:
			if prefixPrinted {
				ui.Print("\n")
			}
			return nil
		}
	}
}

func renderPlan(plan api.PlanUpdatePayload) {
	if len(plan.Plan) == 0 {
		return
	}
	done := 0
	for _, step := range plan.Plan {
		if step.Status == api.StepCompleted {
			done++
		}
	}

	name := plan.Name
	if name == "" {
		name = "plan"
	}
	ui.Printf("\n\n🗂️  %s (%d/%d done)\n", name, done, len(plan.Plan))
	for i, step := range plan.Plan {
		ui.Printf("  - [%s] %d. %s\n", step.Status, i+1, step.Step)
	}
	ui.Print("\n")
}
