package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration without starting a session",
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	workspaceRoot, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	cfg, err := loadConfig(workspaceRoot)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}

	fmt.Println("✅ Configuration is valid.")
	fmt.Printf("  Model:     %s\n", cfg.Model)
	fmt.Printf("  Preset:    %s\n", cfg.Preset)
	fmt.Printf("  Base URL:  %s\n", cfg.BaseURL)
	fmt.Printf("  Mock mode: %v\n", cfg.MockMode)
}
