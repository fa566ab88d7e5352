package ui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"AgentCore/pkg/engine/api"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// CLIApprover implements approval.Handler for terminal interaction.
// Grounded on the teacher's CLIApprover (cmd/ui/cli_approver.go),
// generalized from the teacher's (Decision, autoApproveAll bool, error)
// return shape to this repo's approval.Handler interface: the broker
// blocks synchronously inside the dispatch goroutine, so "approve all"
// is expressed as a DecisionKind (DecisionApproveForSession) the Session
// Core applies via policy.AllowSession, rather than as a side channel the
// CLI's turn loop has to thread through itself.
type CLIApprover struct {
	Reader *bufio.Reader
}

// NewCLIApprover creates a new CLI approver.
func NewCLIApprover() *CLIApprover {
	return &CLIApprover{
		Reader: bufio.NewReader(os.Stdin),
	}
}

// RequestApproval prompts the user with an interactive approval UI.
func (c *CLIApprover) RequestApproval(ctx context.Context, req api.ApprovalRequest) (api.Decision, error) {
	fmt.Println()
	fmt.Println("\033[33m╭──────────────────────────────────────────────────────────╮\033[0m")
	fmt.Println("\033[33m│\033[0m  \033[1;33m⚠️  Tool Action Requires Approval\033[0m                        \033[33m│\033[0m")
	fmt.Println("\033[33m╰──────────────────────────────────────────────────────────╯\033[0m")
	fmt.Println()

	if req.Preview != nil {
		fmt.Printf("\033[1mPreview:\033[0m %s\n", req.Preview.Summary)
		if req.Preview.RiskHint != "" {
			fmt.Printf("\033[1mRisk:\033[0m %s\n", req.Preview.RiskHint)
		}
		if len(req.Preview.Affected) > 0 {
			fmt.Printf("\033[1mAffected:\033[0m %s\n", strings.Join(req.Preview.Affected, ", "))
		}
		if req.Preview.Content != "" {
			fmt.Println()
			fmt.Println(req.Preview.Content)
		}
	} else {
		fmt.Printf("\033[1mTool:\033[0m %s\n", req.ToolName)
		if len(req.Args) > 0 {
			fmt.Println("\033[1mArguments:\033[0m")
			for k, v := range req.Args {
				vStr := fmt.Sprintf("%v", v)
				if len(vStr) > 100 {
					vStr = vStr[:100] + "..."
				}
				fmt.Printf("  %s: %s\n", k, vStr)
			}
		}
	}

	fmt.Println()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return c.interactiveApproval(req)
	}
	return c.simpleApproval(req)
}

// interactiveApproval uses bubbletea for selection.
func (c *CLIApprover) interactiveApproval(req api.ApprovalRequest) (api.Decision, error) {
	model := initialApprovalModel(req)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return c.simpleApproval(req)
	}

	m, ok := finalModel.(approvalModel)
	if !ok || m.cancelled {
		return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
	}

	return c.makeDecision(req, m.selected), nil
}

// approvalModel is the bubbletea model for the approval prompt.
type approvalModel struct {
	req       api.ApprovalRequest
	options   []string
	selected  int
	cancelled bool
	chosen    bool
}

func initialApprovalModel(req api.ApprovalRequest) approvalModel {
	return approvalModel{
		req:      req,
		options:  []string{"Approve", "Reject", "Approve for rest of session"},
		selected: 0,
	}
}

func (m approvalModel) Init() tea.Cmd {
	return nil
}

func (m approvalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			} else {
				m.selected = len(m.options) - 1
			}
		case "down", "j":
			if m.selected < len(m.options)-1 {
				m.selected++
			} else {
				m.selected = 0
			}
		case "enter":
			m.chosen = true
			return m, tea.Quit
		case "a", "A":
			m.selected = 0
			m.chosen = true
			return m, tea.Quit
		case "r", "R":
			m.selected = 1
			m.chosen = true
			return m, tea.Quit
		case "s", "S":
			m.selected = 2
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m approvalModel) View() string {
	s := strings.Builder{}

	for i, opt := range m.options {
		cursor := " "
		if m.selected == i {
			cursor = "❯"
		}

		checked := "☐"
		if m.selected == i {
			checked = "☑"
		}

		var line string
		if m.selected == i {
			switch i {
			case 0:
				line = fmt.Sprintf("%s \033[1;32m%s %s\033[0m", cursor, checked, opt)
			case 1:
				line = fmt.Sprintf("%s \033[1;31m%s %s\033[0m", cursor, checked, opt)
			case 2:
				line = fmt.Sprintf("%s \033[1;34m%s %s\033[0m", cursor, checked, opt)
			default:
				line = fmt.Sprintf("%s %s %s", cursor, checked, opt)
			}
		} else {
			line = fmt.Sprintf("  \033[2m%s %s\033[0m", checked, opt)
		}

		s.WriteString(line + "\n")
	}

	return s.String()
}

func (c *CLIApprover) makeDecision(req api.ApprovalRequest, selected int) api.Decision {
	switch selected {
	case 0:
		fmt.Println("\033[32m✓ Approved\033[0m")
		return api.Decision{Kind: api.DecisionApprove, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
	case 1:
		fmt.Println("\033[31m✗ Rejected\033[0m")
		return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
	case 2:
		fmt.Printf("\033[34m✓ Approving %s for the rest of this session\033[0m\n", req.ToolName)
		return api.Decision{Kind: api.DecisionApproveForSession, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
	}
	return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
}

// simpleApproval handles non-interactive terminals (piped stdin, etc).
func (c *CLIApprover) simpleApproval(req api.ApprovalRequest) (api.Decision, error) {
	fmt.Println("  (A)pprove  |  (R)eject  |  approve for rest of (s)ession")
	fmt.Print("\nChoice [A/r/s]: ")

	input, err := c.Reader.ReadString('\n')
	if err != nil {
		return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, err
	}

	input = strings.TrimSpace(strings.ToLower(input))

	switch input {
	case "", "a", "approve", "y", "yes":
		fmt.Println("\033[32m✓ Approved\033[0m")
		return api.Decision{Kind: api.DecisionApprove, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
	case "r", "reject", "n", "no":
		fmt.Println("\033[31m✗ Rejected\033[0m")
		return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
	case "s", "session":
		fmt.Printf("\033[34m✓ Approving %s for the rest of this session\033[0m\n", req.ToolName)
		return api.Decision{Kind: api.DecisionApproveForSession, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
	default:
		fmt.Println("\033[33m? Defaulting to Approve\033[0m")
		return api.Decision{Kind: api.DecisionApprove, RequestID: req.RequestID, ToolCallID: req.ToolCallID}, nil
	}
}
