package cmd

import (
	"context"
	"fmt"
	"strings"

	"AgentCore/cmd/ui"
	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/approval"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var execAutoApproveFlag bool

var execCmd = &cobra.Command{
	Use:   "exec <prompt>",
	Short: "Run a single non-interactive turn and exit",
	Args:  cobra.ExactArgs(1),
	Run:   runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execAutoApproveFlag, "full-auto", false, "approve every tool call without prompting")
	rootCmd.AddCommand(execCmd)
}

// runExec drives one turn to completion non-interactively: no input
// history, no slash commands, no ESC-to-interrupt monitor (there is no
// terminal session to read from). Approval defaults to the CLI's
// interactive approver unless --full-auto is set, in which case every
// request is approved automatically (§6's non-interactive mode).
func runExec(cmd *cobra.Command, args []string) {
	prompt := strings.TrimSpace(args[0])
	if prompt == "" {
		fmt.Println("Error: prompt must not be empty")
		return
	}

	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	cfg, err := loadConfig(workspaceRoot)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var approver approval.Handler
	if execAutoApproveFlag {
		approver = autoApprover{}
	} else {
		approver = ui.NewCLIApprover()
	}

	sess, err := newSession(uuid.NewString(), cfg, approver)
	if err != nil {
		fmt.Printf("Error initializing session: %v\n", err)
		return
	}
	defer sess.Close()

	stream := sess.Events()
	defer stream.Close()

	ctx := context.Background()
	if err := runTurn(ctx, sess, stream, api.UserInput{Text: prompt}); err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
	}
}

// autoApprover approves every request; used by `exec --full-auto`.
type autoApprover struct{}

func (autoApprover) RequestApproval(ctx context.Context, req api.ApprovalRequest) (api.Decision, error) {
	return api.Decision{Kind: api.DecisionApprove, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
}
