// Package logging is the internal structured-ish logger described in
// SPEC_FULL.md §2.1: leveled, componentized lines written to an io.Writer
// (stderr by default), with an optional per-run debug directory that
// mirrors request/response/usage payloads to disk for offline inspection.
//
// Adapted from the teacher's pkg/logger: the timestamp/level/scope/caller
// tab-separated-JSON shape is replaced with the single-line
// "[LEVEL] component: message key=value ..." format this repo's
// components actually emit, and the file-writing responsibility is
// widened from one append-only log file to the three-file debug bundle
// (§6) the Model Transport needs.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level orders log severity, most to least verbose: Debug < Info < Warn < Error.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled, componentized lines and, when configured with a
// debug directory, duplicates request/response/usage payloads there.
type Logger struct {
	component string
	level     Level
	out       io.Writer

	mu       sync.Mutex
	debugDir string
}

// New constructs a Logger for component, writing lines at level or above
// to out (os.Stderr if nil). debugDir, if non-empty, enables the debug
// file-writing methods below; it is created lazily on first write.
func New(component string, level Level, out io.Writer, debugDir string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{component: component, level: level, out: out, debugDir: debugDir}
}

// DebugDir reports the configured debug directory, or "" if disabled.
func (l *Logger) DebugDir() string { return l.debugDir }

func (l *Logger) log(level Level, msg string, kv []any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s: %s%s\n", level, l.component, msg, formatKV(kv))
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(Debug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(Info, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(Warn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(Error, msg, kv) }

// formatKV renders trailing key=value pairs from an alternating
// key1, value1, key2, value2, ... slice, skipping a dangling final key.
func formatKV(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// NextBasename returns a fresh, monotonically-ordered basename (without
// directory or suffix) for one debug-file triple, rooted at DebugDir.
// Returns "" when debug logging is disabled.
func (l *Logger) NextBasename() string {
	if l.debugDir == "" {
		return ""
	}
	return filepath.Join(l.debugDir, time.Now().UTC().Format("20060102T150405.000000000"))
}

// WriteRequest writes {basename}_request.json, the outgoing request body.
func (l *Logger) WriteRequest(basename string, body []byte) error {
	if basename == "" {
		return nil
	}
	if err := l.ensureDir(); err != nil {
		return err
	}
	return os.WriteFile(basename+"_request.json", body, 0644)
}

// AppendResponseLine appends one decoded event to {basename}_response.jsonl.
func (l *Logger) AppendResponseLine(basename string, line []byte) error {
	if basename == "" {
		return nil
	}
	if err := l.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(basename+"_response.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// WriteUsage writes {basename}_usage.json, marshaling v.
func (l *Logger) WriteUsage(basename string, v any) error {
	if basename == "" {
		return nil
	}
	if err := l.ensureDir(); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(basename+"_usage.json", out, 0644)
}

func (l *Logger) ensureDir() error {
	if l.debugDir == "" {
		return nil
	}
	return os.MkdirAll(l.debugDir, 0755)
}
