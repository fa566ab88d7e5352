package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AgentCore/cmd/ui"
	"AgentCore/pkg/engine/api"
	cfgpkg "AgentCore/pkg/engine/config"
	"AgentCore/pkg/engine/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new interactive session",
	Run:   runInteractive,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runInteractive(cmd *cobra.Command, args []string) {
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

	sessionID := uuid.NewString()
	startInteractiveLoop(workspaceRoot, sessionID, cfg, true)
}

// startInteractiveLoop wires a session, persists its header record, and
// drives the REPL until /quit. Shared by `run` (fresh session) and
// `resume` (replayed session). Grounded on the teacher's runChat
// (cmd/chat.go), generalized from its Engine/StartSession/Resume surface
// to this repo's single long-lived runtime.Session and synchronous
// approval broker.
func startInteractiveLoop(workspaceRoot, sessionID string, cfg cfgpkg.Config, isNew bool) {
	ctx := context.Background()

	sessStore, err := store.NewFileSessionStore(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing session store: %v\n", err)
		return
	}

	now := time.Now()
	if isNew {
		if err := sessStore.Put(ctx, sessionID, &api.Session{
			SessionID: sessionID, CreatedAt: now, UpdatedAt: now,
			Model: cfg.Model, Preset: cfg.Preset,
		}); err != nil {
			fmt.Printf("Warning: failed to persist session header: %v\n", err)
		}
	}

	approver := ui.NewCLIApprover()
	sess, err := newSession(sessionID, cfg, approver)
	if err != nil {
		fmt.Printf("Error initializing session: %v\n", err)
		return
	}
	defer sess.Close()

	stream := sess.Events()
	defer stream.Close()

	printBanner(sessionID, cfg)

	historyMgr, err := NewHistoryManager(workspaceRoot)
	if err != nil {
		fmt.Printf("Warning: failed to initialize history: %v\n", err)
	}
	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	for {
		in, err := ui.ReadInputWithHistory("\n💬 You: ", inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			return
		}
		if in.Cancelled {
			return
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				go func(t string) { _ = historyMgr.Append(t) }(text)
			}
		}

		if handled := handleSlashCommand(ctx, text, workspaceRoot, sessionID, &cfg, sess, sessStore); handled {
			if cmdName := strings.ToLower(strings.Fields(text)[0]); cmdName == "/quit" || cmdName == "/exit" || cmdName == "/q" {
				return
			}
			continue
		}

		if err := runTurn(ctx, sess, stream, api.UserInput{Text: text}); err != nil {
			fmt.Printf("\n❌ Error: %v\n", err)
		}
		_ = sessStore.Put(ctx, sessionID, &api.Session{
			SessionID: sessionID, CreatedAt: now, UpdatedAt: time.Now(),
			Model: cfg.Model, Preset: cfg.Preset,
		})
	}
}

// handleSlashCommand dispatches the §6 CLI surface's slash commands.
// Returns true when text was recognized as a command (whether or not it
// succeeded), signaling the caller to skip treating it as a turn prompt.
func handleSlashCommand(ctx context.Context, text, workspaceRoot, sessionID string, cfg *cfgpkg.Config, sess api.Session, sessStore *store.FileSessionStore) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("\nGoodbye.")
		return true

	case "/help", "/?":
		fmt.Println("\nCommands:")
		for _, c := range ui.DefaultCommands {
			fmt.Printf("  %-12s %s\n", c.Name, c.Description)
		}
		return true

	case "/new":
		fmt.Println("\nStart a new session with: agentcore run")
		return true

	case "/init":
		path, err := writeAgentInstructionsTemplate(workspaceRoot)
		if err != nil {
			fmt.Printf("❌ Init failed: %v\n", err)
			return true
		}
		fmt.Printf("✅ Wrote agent instructions template: %s\n", path)
		return true

	case "/compact":
		fmt.Println("\n🔄 Compacting conversation history...")
		if err := sess.Compact(ctx); err != nil {
			fmt.Printf("❌ Compact failed: %v\n", err)
		} else {
			fmt.Println("✅ Compacted.")
		}
		return true

	case "/model":
		if len(fields) < 2 {
			fmt.Printf("Current model: %s\n", cfg.Model)
			return true
		}
		cfg.Model = fields[1]
		fmt.Printf("Model set to %s (restart session to apply)\n", cfg.Model)
		return true

	case "/reasoning":
		if len(fields) < 2 {
			fmt.Printf("Current reasoning effort: %s\n", cfg.ReasoningEffort)
			return true
		}
		switch fields[1] {
		case "minimal", "low", "medium", "high":
			cfg.ReasoningEffort = fields[1]
			fmt.Printf("Reasoning effort set to %s (restart session to apply)\n", cfg.ReasoningEffort)
		default:
			fmt.Println("Usage: /reasoning minimal|low|medium|high")
		}
		return true

	case "/approvals":
		if len(fields) < 2 {
			fmt.Printf("Current approval preset: %s\n", cfg.Preset)
			return true
		}
		switch api.ExecutionPreset(fields[1]) {
		case api.PresetReadOnly, api.PresetUntrusted, api.PresetAuto, api.PresetFullYolo:
			cfg.Preset = api.ExecutionPreset(fields[1])
			fmt.Printf("Approval preset set to %s (restart session to apply)\n", cfg.Preset)
		default:
			fmt.Println("Usage: /approvals read-only|untrusted|auto|full-yolo")
		}
		return true

	case "/diff":
		fmt.Println("(diff is shown inline as each apply_patch call completes)")
		return true

	case "/status":
		fmt.Printf("\nSession:   %s\n", sessionID)
		fmt.Printf("Model:     %s\n", cfg.Model)
		fmt.Printf("Reasoning: %s\n", cfg.ReasoningEffort)
		fmt.Printf("Approvals: %s\n", cfg.Preset)
		if us, err := store.NewUsageStore(workspaceRoot); err == nil {
			accountID := cfg.AccountID
			if accountID == "" {
				accountID = "default"
			}
			if data, err := us.Load(accountID, time.Now()); err == nil {
				fmt.Printf("Tokens:    %d total, %d in the last hour\n", data.Totals.TotalTokens, data.TokensLastHour.TotalTokens)
			}
		}
		return true

	case "/mcp", "/agents", "/resume":
		fmt.Printf("%s is delegated to external collaborators and not implemented by this client.\n", fields[0])
		return true
	}

	return false
}

func printBanner(sessionID string, cfg cfgpkg.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          AgentCore                              ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Session: %-52s ║\n", sessionID)
	fmt.Printf("║  Model:   %-52s ║\n", cfg.Model)
	fmt.Printf("║  Preset:  %-52s ║\n", string(cfg.Preset))
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Type /help to list commands. Press ESC twice to interrupt.     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}
