package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Account Usage
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TokenTotals mirrors the teacher's TokenUsage field set, but is kept
// separate here because account_usage.rs's schema uses it in two distinct
// roles: an all-time cumulative Totals and a rolling TokensLastHour.
type TokenTotals struct {
	InputTokens           uint64 `json:"input_tokens"`
	CachedInputTokens     uint64 `json:"cached_input_tokens"`
	OutputTokens          uint64 `json:"output_tokens"`
	ReasoningOutputTokens uint64 `json:"reasoning_output_tokens"`
	TotalTokens           uint64 `json:"total_tokens"`
}

func (t TokenTotals) add(o TokenTotals) TokenTotals {
	return TokenTotals{
		InputTokens:           saturatingAdd(t.InputTokens, o.InputTokens),
		CachedInputTokens:     saturatingAdd(t.CachedInputTokens, o.CachedInputTokens),
		OutputTokens:          saturatingAdd(t.OutputTokens, o.OutputTokens),
		ReasoningOutputTokens: saturatingAdd(t.ReasoningOutputTokens, o.ReasoningOutputTokens),
		TotalTokens:           saturatingAdd(t.TotalTokens, o.TotalTokens),
	}
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// TokenWindowEntry is one sample in the rolling window (Record appends one
// per call, unbucketed),
// mined verbatim (field-for-field) from account_usage.rs.
type TokenWindowEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Tokens    TokenTotals `json:"tokens"`
}

// RateLimitInfo records the most recently observed rate-limit snapshot
// from the Model Transport (§4.3), persisted across process restarts.
type RateLimitInfo struct {
	PrimaryUsedPercent   float64   `json:"primary_used_percent"`
	PrimaryWindowMinutes int       `json:"primary_window_minutes"`
	ResetsAt             time.Time `json:"resets_at"`
}

// AccountUsageData is the versioned on-disk schema mined from
// codex-rs/core/src/account_usage.rs (§3.1).
type AccountUsageData struct {
	Version         int                `json:"version"`
	AccountID       string             `json:"account_id"`
	Plan            string             `json:"plan,omitempty"`
	LastUpdated     time.Time          `json:"last_updated"`
	Totals          TokenTotals        `json:"totals"`
	HourlyEntries   []TokenWindowEntry `json:"hourly_entries"`
	TokensLastHour  TokenTotals        `json:"tokens_last_hour"`
	RateLimit       *RateLimitInfo     `json:"rate_limit,omitempty"`
}

const accountUsageSchemaVersion = 1

// UsageStore persists one AccountUsageData file per account, guarded by an
// flock advisory lock so that concurrent processes touching the same
// account (e.g. two terminal sessions) never interleave read-modify-write
// cycles.
type UsageStore struct {
	baseDir string
}

// NewUsageStore roots usage files at workspaceRoot/usage.
func NewUsageStore(workspaceRoot string) (*UsageStore, error) {
	baseDir := filepath.Join(workspaceRoot, "usage")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage directory: %w", err)
	}
	return &UsageStore{baseDir: baseDir}, nil
}

func (u *UsageStore) path(accountID string) string {
	return filepath.Join(u.baseDir, accountID+".json")
}

// Record applies a turn's token usage and optional rate-limit snapshot to
// the account's usage file under an exclusive flock, pruning
// hourly_entries older than one hour before recomputing tokens_last_hour
// (update_last_hour in account_usage.rs).
func (u *UsageStore) Record(accountID string, delta TokenTotals, rateLimit *RateLimitInfo, now time.Time) (AccountUsageData, error) {
	p := u.path(accountID)
	lockPath := p + ".lock"

	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return AccountUsageData{}, fmt.Errorf("failed to lock usage file: %w", err)
	}
	defer fl.Unlock()

	data, err := u.readLocked(p, accountID, now)
	if err != nil {
		return AccountUsageData{}, err
	}

	data.Totals = data.Totals.add(delta)
	data.HourlyEntries = append(data.HourlyEntries, TokenWindowEntry{Timestamp: now, Tokens: delta})
	data.HourlyEntries = pruneOlderThanHour(data.HourlyEntries, now)

	var lastHour TokenTotals
	for _, e := range data.HourlyEntries {
		lastHour = lastHour.add(e.Tokens)
	}
	data.TokensLastHour = lastHour
	data.LastUpdated = now
	if rateLimit != nil {
		data.RateLimit = rateLimit
	}

	if err := u.writeLocked(p, data); err != nil {
		return AccountUsageData{}, err
	}
	return data, nil
}

// Load reads the current usage snapshot without mutating it (used by
// /status). Returns a zero-valued AccountUsageData if no file exists yet.
func (u *UsageStore) Load(accountID string, now time.Time) (AccountUsageData, error) {
	p := u.path(accountID)
	lockPath := p + ".lock"

	fl := flock.New(lockPath)
	if err := fl.RLock(); err != nil {
		return AccountUsageData{}, fmt.Errorf("failed to lock usage file: %w", err)
	}
	defer fl.Unlock()

	return u.readLocked(p, accountID, now)
}

func (u *UsageStore) readLocked(p, accountID string, now time.Time) (AccountUsageData, error) {
	raw, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return AccountUsageData{
			Version:     accountUsageSchemaVersion,
			AccountID:   accountID,
			LastUpdated: now,
		}, nil
	}
	if err != nil {
		return AccountUsageData{}, fmt.Errorf("failed to read usage file: %w", err)
	}

	var data AccountUsageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return AccountUsageData{}, fmt.Errorf("failed to unmarshal usage file: %w", err)
	}
	return data, nil
}

func (u *UsageStore) writeLocked(p string, data AccountUsageData) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage file: %w", err)
	}
	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write temp usage file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp usage file: %w", err)
	}
	return nil
}

func pruneOlderThanHour(entries []TokenWindowEntry, now time.Time) []TokenWindowEntry {
	cutoff := now.Add(-time.Hour)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
