package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"AgentCore/pkg/logger"

	"github.com/spf13/cobra"
)

// Global flags
var (
	modelFlag      string
	approvalsFlag  string
	configPathFlag string
	debugFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "AgentCore - an interactive terminal coding-agent client",
	Long: `AgentCore drives a conversation between a human user and a remote
reasoning model, executing model-requested shell commands and file edits
against a local workspace under an approval policy.

Global Flags:
  --model       model name to use (overrides config file)
  --approvals   read-only | untrusted | auto | full-yolo (overrides config file)
  --config      path to config.yaml (default: $APP_CONFIG or ~/.config/agentcore/config.yaml)
  --debug       enable per-run debug logs`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model name (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&approvalsFlag, "approvals", "", "read-only | untrusted | auto | full-yolo")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable per-run debug logs")
}

// Execute runs the root command.
func Execute() {
	loadDotEnv()

	logPath := fmt.Sprintf("workspace/logs/%s.log", time.Now().Format("20060102"))
	level := logger.INFO
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = logger.DEBUG
	case "WARN":
		level = logger.WARN
	case "ERROR":
		level = logger.ERROR
	}
	if err := logger.Init(logPath, level, "agentcore"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	logger.Info("System", "AgentCore starting", map[string]interface{}{
		"version": "1.0.0",
		"os":      runtime.GOOS,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv reads .env file and sets environment variables, without
// overriding anything already set in the shell environment.
func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if (strings.HasPrefix(val, "\"") && strings.HasSuffix(val, "\"")) ||
			(strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'")) {
			val = val[1 : len(val)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func init() {
	_ = filepath.Join // kept for parity with resolveWorkspaceRoot's symlink-aware path handling in engine_factory.go
}
