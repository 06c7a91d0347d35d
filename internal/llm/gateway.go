// Package llm wraps generative model calls with retry, backoff and model
// fallback.
package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// Model generates text for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider builds model handles by name.
type Provider interface {
	Model(ctx context.Context, name string) (Model, error)
}

// Generator is what the analyzers depend on.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// SleepFunc pauses the calling request only. It returns early with the
// context error if ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type RetryPolicy struct {
	// MaxAttempts per model.
	MaxAttempts int
	// BaseDelay is doubled on every rate-limited attempt: base, 2*base, 4*base...
	BaseDelay time.Duration
	// ErrorDelay is waited once after a non-rate-limit failure before
	// moving on to the next model.
	ErrorDelay time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   5 * time.Second,
	ErrorDelay:  2 * time.Second,
}

type Gateway struct {
	provider Provider
	fallback string
	policy   RetryPolicy
	sleep    SleepFunc
	limiter  *rate.Limiter
	logger   *utils.Logger
}

type GatewayOption func(*Gateway)

func WithRetryPolicy(p RetryPolicy) GatewayOption {
	return func(g *Gateway) {
		if p.MaxAttempts > 0 {
			g.policy = p
		}
	}
}

func WithSleep(fn SleepFunc) GatewayOption {
	return func(g *Gateway) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithRequestsPerMinute throttles every model call made through the
// gateway, across all requests. Zero disables throttling.
func WithRequestsPerMinute(rpm int) GatewayOption {
	return func(g *Gateway) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// NewGateway returns a gateway that falls back to fallbackModel when the
// requested model fails.
func NewGateway(provider Provider, fallbackModel string, logger *utils.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: provider,
		fallback: fallbackModel,
		policy:   DefaultRetryPolicy,
		sleep:    Sleep,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidates returns the ordered model list for a request.
func (g *Gateway) Candidates(model string) []string {
	if model == g.fallback || g.fallback == "" {
		return []string{model}
	}
	return []string{model, g.fallback}
}

type state int

const (
	stateTryModel state = iota
	stateAttempt
	stateBackoff
	stateAdvance
	stateExhausted
	stateSuccess
)

// call is the per-request retry state.
type call struct {
	models  []string
	index   int
	current Model
	attempt int
	delay   time.Duration
	lastErr error
	result  string
}

func (c *call) modelName() string {
	return c.models[c.index]
}

// Generate runs prompt against model, retrying and falling back as needed.
// A rate-limited attempt waits BaseDelay*2^attempt and retries the same
// model; any other failure waits ErrorDelay and moves to the next model.
// The only errors returned are ErrRetriesExhausted and context errors.
func (g *Gateway) Generate(ctx context.Context, model, prompt string) (string, error) {
	c := &call{models: g.Candidates(model)}
	st := stateTryModel

	for {
		switch st {
		case stateTryModel:
			if c.index >= len(c.models) {
				st = stateExhausted
				continue
			}
			g.logger.Debug("Generating with model", "model", c.modelName())
			m, err := g.provider.Model(ctx, c.modelName())
			if err != nil {
				g.logger.Error("Failed to initialize model", "model", c.modelName(), "error", err)
				c.lastErr = err
				c.index++
				continue
			}
			c.current = m
			c.attempt = 0
			st = stateAttempt

		case stateAttempt:
			if c.attempt >= g.policy.MaxAttempts {
				st = stateAdvance
				continue
			}
			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					return "", err
				}
			}
			text, err := c.current.Generate(ctx, prompt)
			if err == nil {
				c.result = text
				st = stateSuccess
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			c.lastErr = err
			if IsRateLimit(err) {
				c.delay = g.policy.BaseDelay * time.Duration(1<<c.attempt)
				g.logger.Warn("Rate limit hit, retrying",
					"model", c.modelName(),
					"attempt", c.attempt+1,
					"delay", c.delay)
				c.attempt++
				st = stateBackoff
				continue
			}
			g.logger.Error("Model call failed",
				"model", c.modelName(),
				"attempt", c.attempt+1,
				"error", err)
			if err := g.sleep(ctx, g.policy.ErrorDelay); err != nil {
				return "", err
			}
			st = stateAdvance

		case stateBackoff:
			if err := g.sleep(ctx, c.delay); err != nil {
				return "", err
			}
			st = stateAttempt

		case stateAdvance:
			c.index++
			st = stateTryModel

		case stateExhausted:
			if c.lastErr != nil {
				return "", fmt.Errorf("%w: %v", ErrRetriesExhausted, c.lastErr)
			}
			return "", ErrRetriesExhausted

		case stateSuccess:
			return c.result, nil
		}
	}
}
