package cmd

import (
	"fmt"

	"AgentCore/pkg/engine/store"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a previously persisted session",
	Args:  cobra.ExactArgs(1),
	Run:   runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) {
	sessionID := args[0]

	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	sessStore, err := store.NewFileSessionStore(workspaceRoot)
	if err != nil {
		fmt.Printf("Error initializing session store: %v\n", err)
		return
	}
	header, err := sessStore.Get(cmd.Context(), sessionID)
	if err != nil {
		fmt.Printf("Session '%s' not found: %v\n", sessionID, err)
		return
	}

	cfg, err := loadConfig(workspaceRoot)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}
	if modelFlag == "" {
		cfg.Model = header.Model
	}
	if approvalsFlag == "" {
		cfg.Preset = header.Preset
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	// The transcript itself is replayed inside runtime.New from the
	// session's persisted JSONL history; only the header (model/preset)
	// needs to be recovered here.
	startInteractiveLoop(workspaceRoot, sessionID, cfg, false)
}
