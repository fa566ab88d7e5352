package cmd

import (
	"os"
	"path/filepath"

	"AgentCore/internal/logging"
	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/approval"
	cfgpkg "AgentCore/pkg/engine/config"
	"AgentCore/pkg/engine/policy"
	"AgentCore/pkg/engine/runtime"
	"AgentCore/pkg/engine/sandbox"
	"AgentCore/pkg/engine/store"
	"AgentCore/pkg/engine/tools"
	"AgentCore/pkg/engine/transport"
)

func resolveWorkspaceRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if realWD, err := filepath.EvalSymlinks(wd); err == nil {
		wd = realWD
	}
	workspaceDir := filepath.Join(wd, "workspace")
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return "", err
	}
	return workspaceDir, nil
}

// loadConfig resolves the YAML/env Config (§2.1, §6), applying any
// --model/--approvals/--debug flag overrides on top.
func loadConfig(workspaceRoot string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(configPathFlag)
	if err != nil {
		return cfg, err
	}
	cfg.WorkspaceRoot = workspaceRoot
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if approvalsFlag != "" {
		cfg.Preset = api.ExecutionPreset(approvalsFlag)
	}
	if debugFlag {
		cfg.DebugLogs = true
	}
	return cfg, nil
}

// newSession wires every collaborator the Session Core needs: transport,
// tool registry, policy, sandbox, approval broker, transcript store, and
// event bus. Grounded on the teacher's newAPIEngine (cmd/engine_factory.go),
// generalized from the teacher's Engine/TurnRunner/Middleware graph to this
// repo's single runtime.Session.
func newSession(sessionID string, cfg cfgpkg.Config, approver approval.Handler) (*runtime.Session, error) {
	transcript, err := store.NewTranscript(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	usageStore, err := store.NewUsageStore(cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	gateway := sandbox.NewGateway()
	pol := policy.New(cfg.Preset)
	_, sandboxPolicy := policy.Resolve(cfg.Preset)

	seq := int32(0)
	registry := tools.DefaultRegistry(cfg.WorkspaceRoot, tools.BuiltinOptions{
		Sandbox:       gateway,
		SandboxPolicy: sandboxPolicy,
		SessionIDs:    func() int32 { seq++; return seq },
		ActionlintCfg: tools.ActionlintConfig{
			OnPatch: cfg.GitHub.ActionlintOnPatch,
			Path:    cfg.GitHub.ActionlintPath,
		},
	})

	var debugDir string
	if cfg.DebugLogs {
		debugDir = filepath.Join(cfg.WorkspaceRoot, "debug")
	}
	transportLogger := logging.New("transport", logging.Info, os.Stderr, debugDir)

	client, err := transport.New(transport.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		AccountID: cfg.AccountID,
		UserAgent: "agentcore-cli/1.0",
		Logger:    transportLogger,
	})
	if err != nil {
		return nil, err
	}

	return runtime.New(sessionID, runtime.Config{
		WorkspaceRoot: cfg.WorkspaceRoot,
		ModelCfg: runtime.ModelConfig{
			Model:            cfg.Model,
			Instructions:     cfg.Instructions,
			ReasoningEffort:  cfg.ReasoningEffort,
			SummaryVerbosity: cfg.SummaryVerbosity,
		},
		Transport:  client,
		Registry:   registry,
		Policy:     pol,
		Approver:   approver,
		Transcript: transcript,
		Bus:        store.NewBus(),
		UsageStore: usageStore,
		AccountID:  cfg.AccountID,
	})
}
