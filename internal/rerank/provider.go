// Package rerank implements the LLM reranking stage: two provider clients
// behind budget-aware circuit breakers and the orchestrator that sequences
// cache lookup, prompt assembly, provider calls, and passthrough degradation.
package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
)

// Budget guards for provider calls.
const (
	// minBudget is the remaining budget below which a provider call is
	// skipped entirely.
	minBudget = 50 * time.Millisecond

	// minAttemptTimeout is the floor for the effective per-attempt timeout.
	minAttemptTimeout = 100 * time.Millisecond

	// hardTimeoutSlack is added to the effective timeout as the context
	// deadline, covering connection teardown.
	hardTimeoutSlack = 50 * time.Millisecond
)

// Request is the provider-agnostic rerank invocation: the assembled prompt
// plus the caps the provider should honor.
type Request struct {
	Prompt         string
	TopN           int
	IncludeReasons bool
}

// Response is a validated provider slate. Candidate IDs are not yet checked
// against the input set; that is the orchestrator's job.
type Response struct {
	Candidates []models.RerankResult
}

// Provider is one LLM rerank backend. Rerank never panics past its boundary
// and never returns an error: nil means unavailable and the caller should
// degrade.
type Provider interface {
	Name() string
	Enabled() bool
	Rerank(ctx context.Context, req *Request, remainingBudget time.Duration) *Response
	Health() ProviderHealth
}

// ProviderHealth is the per-provider health snapshot.
type ProviderHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	CircuitState string `json:"circuitState"`
	Model        string `json:"model,omitempty"`
}

// completer is the vendor-specific part of a provider: build and execute one
// HTTP completion call, returning the raw model text.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// client carries the budget, breaker, retry, and response-validation logic
// shared by both providers.
type client struct {
	name      string
	config    config.ProviderConfig
	breaker   *resilience.Breaker
	completer completer
	logger    observability.Logger
	metrics   *metrics.Metrics
}

func newClient(name string, cfg config.ProviderConfig, comp completer, logger observability.Logger, m *metrics.Metrics) *client {
	c := &client{
		name:      name,
		config:    cfg,
		completer: comp,
		logger:    logger.WithPrefix("provider-" + name),
		metrics:   m,
	}
	c.breaker = resilience.NewBreaker(name, resilience.BreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		Cooldown:         cfg.CircuitCooldown(),
	}, c.logger, func(name string, from, to resilience.State) {
		if m != nil {
			m.SetCircuitBreakerState(name, float64(to))
		}
	})
	return c
}

func (c *client) Name() string { return c.name }

func (c *client) Enabled() bool { return c.config.Enabled }

// Health reports the provider's availability from its circuit state.
func (c *client) Health() ProviderHealth {
	h := ProviderHealth{
		Name:         c.name,
		Status:       "healthy",
		CircuitState: c.breaker.State().String(),
		Model:        c.config.Model,
	}
	if !c.config.Enabled {
		h.Status = "disabled"
	} else if c.breaker.State() == resilience.StateOpen {
		h.Status = "unhealthy"
	}
	return h
}

// Rerank runs one budget-aware provider call. It returns nil on any failure:
// circuit open, budget exhausted, transport error, or an invalid response.
func (c *client) Rerank(ctx context.Context, req *Request, remainingBudget time.Duration) (resp *Response) {
	// Providers never panic past their boundary.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Provider call panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			c.breaker.RecordFailure()
			resp = nil
		}
	}()

	if !c.config.Enabled {
		return nil
	}
	if remainingBudget <= minBudget {
		c.logger.Debug("Skipping provider call, budget exhausted", map[string]interface{}{
			"remaining_ms": remainingBudget.Milliseconds(),
		})
		if c.metrics != nil {
			c.metrics.RecordProviderSkip(c.name, "budget")
		}
		return nil
	}
	if !c.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.RecordProviderSkip(c.name, "circuit_open")
		}
		return nil
	}

	effective := remainingBudget
	if effective > c.config.Timeout() {
		effective = c.config.Timeout()
	}
	if effective < minAttemptTimeout {
		effective = minAttemptTimeout
	}

	// Retries cannot fit when the budget is already tighter than one
	// configured attempt.
	retries := c.config.Retries
	if remainingBudget < c.config.Timeout() {
		retries = 0
	}

	callCtx, cancel := context.WithTimeout(ctx, effective+hardTimeoutSlack)
	defer cancel()

	start := time.Now()
	var parsed *Response
	err := resilience.RetryConstant(callCtx, retries, c.config.RetryDelay(), isRetryableProviderError, func() error {
		text, err := c.completer.complete(callCtx, req.Prompt)
		if err != nil {
			return err
		}
		slate, err := decodeSlate(text)
		if err != nil {
			// Malformed output is a provider failure but never retried.
			return &validationError{cause: err}
		}
		parsed = slate
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("Provider call failed", map[string]interface{}{
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		if c.metrics != nil {
			c.metrics.RecordProviderCall(c.name, "failure", elapsed.Seconds())
		}
		return nil
	}

	c.breaker.RecordSuccess()
	if c.metrics != nil {
		c.metrics.RecordProviderCall(c.name, "success", elapsed.Seconds())
	}
	return parsed
}

// httpError carries the upstream status for retry classification.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("provider HTTP error (status %d): %s", e.status, truncate(e.body, 200))
}

// validationError marks a malformed provider response; never retried.
type validationError struct {
	cause error
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid provider response: %v", e.cause)
}

// isRetryableProviderError permits retries only for 5xx responses and
// connection resets. Timeouts, 4xx, and validation failures abort.
func isRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	var ve *validationError
	if errors.As(err, &ve) {
		return false
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500
	}
	if strings.Contains(err.Error(), "connection reset") {
		return true
	}
	return false
}

// slateWire mirrors the required provider response schema. Pointer fields
// distinguish missing values from zero values; unknown fields are ignored.
type slateWire struct {
	Candidates []struct {
		CandidateID string   `json:"candidateId"`
		Rank        *int     `json:"rank"`
		Score       *float64 `json:"score"`
		Reasons     []string `json:"reasons"`
	} `json:"candidates"`
}

// decodeSlate parses the model output into a validated slate. The text may
// wrap the JSON object in code fences or prose; everything outside the
// outermost braces is discarded.
func decodeSlate(text string) (*Response, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in provider output")
	}

	var wire slateWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse provider output: %w", err)
	}
	if len(wire.Candidates) == 0 {
		return nil, fmt.Errorf("provider output has no candidates")
	}

	results := make([]models.RerankResult, 0, len(wire.Candidates))
	for i, c := range wire.Candidates {
		if c.CandidateID == "" {
			return nil, fmt.Errorf("candidate %d missing candidateId", i)
		}
		if c.Rank == nil || *c.Rank < 1 {
			return nil, fmt.Errorf("candidate %q missing or invalid rank", c.CandidateID)
		}
		if c.Score == nil {
			return nil, fmt.Errorf("candidate %q missing score", c.CandidateID)
		}
		results = append(results, models.RerankResult{
			CandidateID: c.CandidateID,
			Rank:        *c.Rank,
			Score:       clampScore(*c.Score),
			Reasons:     c.Reasons,
		})
	}
	return &Response{Candidates: results}, nil
}

// extractJSON returns the outermost {...} block of text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// newHTTPClient builds the transport each provider owns. The transport-level
// timeout is a backstop; per-call deadlines come from the budget clock.
func newHTTPClient(cfg config.ProviderConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout() + time.Second}
}
