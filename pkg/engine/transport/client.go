package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"AgentCore/internal/logging"
	"AgentCore/pkg/engine/api"
)

const defaultTimeout = 600 * time.Second

// Config configures a Client against one model backend.
type Config struct {
	BaseURL     string
	APIKey      string
	AccountID   string
	UserAgent   string
	Originator  string
	HTTPClient  *http.Client
	// MaxElapsed bounds total retry time per turn (§4.3: "overall budget
	// configurable per turn"); zero means backoff.DefaultMaxElapsedTime.
	MaxElapsed time.Duration
	// Logger, when its DebugDir is set, makes every attempt mirror its
	// request body, decoded response events, and final usage/rate-limit
	// snapshot to a {basename}_request.json / {basename}_response.jsonl /
	// {basename}_usage.json triple under that directory (§6). A nil
	// Logger, or one with no debug directory, disables this entirely.
	Logger *logging.Logger
}

// Client is the Model Transport: it posts a Prompt and streams back
// ModelEvents, retrying transient failures with exponential-backoff-plus-
// full-jitter, overridden by an absolute sleep-until-reset when the server
// reports a rate limit.
//
// Grounded on sebastianxbutler-godex's pkg/backend/openai.Client
// (doRequest/StreamResponses shape), with retry swapped from hand-rolled
// to github.com/cenkalti/backoff/v4 per SPEC_FULL.md §4.3.
type Client struct {
	cfg Config
}

// New constructs a Client. cfg.HTTPClient defaults to one with
// defaultTimeout if nil.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{cfg: cfg}, nil
}

// Stream posts prompt and invokes onEvent for each ModelEvent in arrival
// order, retrying the whole request on retriable failures (§4.3: retries
// replay finalized items and rewind unfinalized ones — the caller is
// responsible for that rewind since only it knows which items finalized;
// Stream signals a fresh attempt by invoking onReset before replaying).
// onWait, if non-nil, is called once right before a rate-limit-triggered
// sleep with the wait duration and the absolute resume instant, so the
// caller can surface it as a BackgroundEvent (§4.3, E5).
func (c *Client) Stream(ctx context.Context, prompt Prompt, onEvent func(ModelEvent) error, onReset func(), onWait func(time.Duration, time.Time)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 15 * time.Minute
	if c.cfg.MaxElapsed > 0 {
		bo.MaxElapsedTime = c.cfg.MaxElapsed
	}
	backoffWithCtx := backoff.WithContext(bo, ctx)

	attempt := 0
	operation := func() error {
		if attempt > 0 && onReset != nil {
			onReset()
		}
		attempt++

		err := c.doOneAttempt(ctx, prompt, onEvent)
		if err == nil {
			return nil
		}

		if rl, ok := asRateLimited(err); ok && !rl.ResetsAt.IsZero() {
			wait := time.Until(rl.ResetsAt)
			if wait > 0 {
				if onWait != nil {
					onWait(wait, rl.ResetsAt)
				}
				// Rate-limit reset hint overrides exponential backoff
				// (§4.3): sleep until the absolute instant instead.
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(wait):
				}
			}
			return err
		}

		if !api.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, backoffWithCtx)
}

func asRateLimited(err error) (*api.Error, bool) {
	e, ok := err.(*api.Error)
	if !ok || e.Kind != api.KindRateLimited {
		return nil, false
	}
	return e, true
}

func (c *Client) doOneAttempt(ctx context.Context, prompt Prompt, onEvent func(ModelEvent) error) error {
	body := responsesRequest{
		Model:        prompt.Model,
		Instructions: prompt.Instructions,
		Input:        toWireInput(prompt.Input),
		Tools:        prompt.Tools,
		ParallelToolCalls: prompt.ParallelToolCalls,
		Store:        false,
		Stream:       true,
	}
	if prompt.ReasoningEffort != "" {
		body.Reasoning = &wireReasoning{Effort: prompt.ReasoningEffort, Summary: prompt.SummaryVerbosity}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return api.NewError(api.KindInternal, "failed to encode request", err)
	}

	var basename string
	if c.cfg.Logger != nil {
		basename = c.cfg.Logger.NextBasename()
		_ = c.cfg.Logger.WriteRequest(basename, payload)
		wrapped := onEvent
		onEvent = func(ev ModelEvent) error {
			if line, err := json.Marshal(ev); err == nil {
				_ = c.cfg.Logger.AppendResponseLine(basename, line)
			}
			if ev.Kind == EventCompleted {
				_ = c.cfg.Logger.WriteUsage(basename, struct {
					Usage     api.TokenUsage          `json:"usage"`
					RateLimit *api.RateLimitSnapshot  `json:"rate_limit,omitempty"`
				}{Usage: ev.Usage, RateLimit: ev.RateLimit})
			}
			return wrapped(ev)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return api.NewError(api.KindInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.AccountID != "" {
		req.Header.Set("ChatGPT-Account-Id", c.cfg.AccountID)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Originator != "" {
		req.Header.Set("Originator", c.cfg.Originator)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return api.NewError(api.KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return api.NewError(api.KindAuth, string(msg), nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resetsAt := time.Now().Add(parseRetryAfter(resp.Header.Get("Retry-After")))
		return api.RateLimited(resetsAt, "rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return api.NewError(api.KindTransport, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(msg)), nil)
	}

	return parseStream(resp.Body, onEvent)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 30 * time.Second
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 30 * time.Second
}
