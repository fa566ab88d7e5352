package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"AgentCore/pkg/engine/api"
)

const (
	defaultUnifiedShell    = "/bin/bash"
	defaultYieldTime       = 1000 * time.Millisecond
	maxYieldTime           = 60 * time.Second
	defaultMaxOutputTokens = 10_000
)

// unifiedExecState is the session machine named in §4.2:
// Idle -> Running(pid, pty) -> Running/Blocked -> Completed(exit_code).
type unifiedExecState string

const (
	execRunning   unifiedExecState = "running"
	execCompleted unifiedExecState = "completed"
)

// unifiedExecSession is the UnifiedExecSession record mined from
// codex-rs's unified_exec.rs (§3.1).
type unifiedExecSession struct {
	mu        sync.Mutex
	sessionID int32
	cmd       *exec.Cmd
	pty       ptyHandle
	shell     string
	login     bool
	startedAt time.Time
	state     unifiedExecState
	exitCode  int
	buf       bytes.Buffer
}

// ptyHandle is the subset of *os.File (what pty.Start returns) a session
// needs; naming it separately makes the PTY handle's role explicit at
// call sites.
type ptyHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// unifiedExecManager tracks all live sessions for one Session Core
// instance, keyed by the int32 ids its nextID counter mints.
type unifiedExecManager struct {
	mu       sync.Mutex
	sessions map[int32]*unifiedExecSession
	nextID   func() int32
}

func newUnifiedExecManager(nextID func() int32) *unifiedExecManager {
	if nextID == nil {
		var counter int32
		nextID = func() int32 {
			counter++
			return counter
		}
	}
	return &unifiedExecManager{sessions: map[int32]*unifiedExecSession{}, nextID: nextID}
}

func (m *unifiedExecManager) start(cmdLine, shell string, login bool) (*unifiedExecSession, error) {
	if shell == "" {
		shell = defaultUnifiedShell
	}

	var cmd *exec.Cmd
	if login {
		cmd = exec.Command(shell, "-lc", cmdLine)
	} else {
		cmd = exec.Command(shell, "-c", cmdLine)
	}

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, api.NewError(api.KindSandbox, "failed to start pty session", err)
	}

	sess := &unifiedExecSession{
		sessionID: m.nextID(),
		cmd:       cmd,
		pty:       f,
		shell:     shell,
		login:     login,
		startedAt: time.Now(),
		state:     execRunning,
	}

	m.mu.Lock()
	m.sessions[sess.sessionID] = sess
	m.mu.Unlock()

	go sess.pump()
	go sess.waitForExit()

	return sess, nil
}

func (m *unifiedExecManager) get(id int32) (*unifiedExecSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// pump copies pty output into the session's buffer until EOF.
func (s *unifiedExecSession) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *unifiedExecSession) waitForExit() {
	err := s.cmd.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = execCompleted
	if exitErr, ok := err.(*exec.ExitError); ok {
		s.exitCode = exitErr.ExitCode()
	} else if err == nil {
		s.exitCode = 0
	} else {
		s.exitCode = -1
	}
}

// drain collects whatever output has accumulated since the last drain,
// waiting up to yieldTime for more to arrive if the session is still
// running (the "yield time bounds how long the call blocks" rule).
func (s *unifiedExecSession) drain(yieldTime time.Duration) (output string, exitCode *int, completed bool) {
	deadline := time.Now().Add(yieldTime)
	for {
		s.mu.Lock()
		has := s.buf.Len() > 0
		st := s.state
		if has || st == execCompleted || time.Now().After(deadline) {
			out := s.buf.String()
			s.buf.Reset()
			ec := s.exitCode
			done := st == execCompleted
			s.mu.Unlock()
			if done {
				return out, &ec, true
			}
			return out, nil, false
		}
		s.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *unifiedExecSession) writeStdin(chars string) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == execCompleted {
		return fmt.Errorf("session %d has already completed", s.sessionID)
	}
	_, err := s.pty.Write([]byte(chars))
	return err
}

func clampYieldTime(ms int) time.Duration {
	if ms <= 0 {
		return defaultYieldTime
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxYieldTime {
		return maxYieldTime
	}
	return d
}

// execCommandResponse is the `{session_id, chunk_id, wall_time_seconds,
// output, exit_code?, original_token_count?}` shape from §6/§3.1.
type execCommandResponse struct {
	SessionID          int32   `json:"session_id"`
	ChunkID            int     `json:"chunk_id"`
	WallTimeSeconds     float64 `json:"wall_time_seconds"`
	Output             string  `json:"output"`
	ExitCode           *int    `json:"exit_code,omitempty"`
	OriginalTokenCount *int    `json:"original_token_count,omitempty"`
}

// estimateTokens is a rough chars/4 heuristic used only to populate
// original_token_count when truncating; no tokenizer dependency is wired
// for this cosmetic estimate.
func estimateTokens(s string) int { return len(s) / 4 }

func truncateToTokens(s string, maxTokens int) (string, *int) {
	if maxTokens <= 0 {
		return s, nil
	}
	maxChars := maxTokens * 4
	if len(s) <= maxChars {
		return s, nil
	}
	original := estimateTokens(s)
	return s[:maxChars], &original
}
