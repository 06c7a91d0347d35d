package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/BerylCAtieno/audit-auto-api/internal/utils"
)

// scriptedModel returns the scripted errors in order, then succeeds.
type scriptedModel struct {
	name  string
	errs  []error
	reply string
	calls int
}

func (m *scriptedModel) Generate(_ context.Context, _ string) (string, error) {
	m.calls++
	if m.calls <= len(m.errs) {
		return "", m.errs[m.calls-1]
	}
	return m.reply, nil
}

type fakeProvider struct {
	mu        sync.Mutex
	models    map[string]*scriptedModel
	buildErrs map[string]error
	requested []string
}

func (p *fakeProvider) Model(_ context.Context, name string) (Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested = append(p.requested, name)
	if err := p.buildErrs[name]; err != nil {
		return nil, err
	}
	m, ok := p.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, name)
	}
	return m, nil
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestGateway(p Provider, rec *sleepRecorder) *Gateway {
	return NewGateway(p, "fallback", utils.NewDiscardLogger(), WithSleep(rec.sleep))
}

func TestGateway_RateLimitThenSuccess(t *testing.T) {
	primary := &scriptedModel{
		errs:  []error{ErrRateLimited, fmt.Errorf("wrapped: %w", ErrRateLimited)},
		reply: "ok",
	}
	fallback := &scriptedModel{reply: "from fallback"}
	p := &fakeProvider{models: map[string]*scriptedModel{"primary": primary, "fallback": fallback}}
	rec := &sleepRecorder{}

	out, err := newTestGateway(p, rec).Generate(context.Background(), "primary", "prompt")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, rec.slept)
	assert.Equal(t, 3, primary.calls)
	assert.Zero(t, fallback.calls)
	assert.Equal(t, []string{"primary"}, p.requested)
}

func TestGateway_PermanentErrorFallsBack(t *testing.T) {
	boom := errors.New("404 model not found")
	primary := &scriptedModel{errs: []error{boom, boom, boom}}
	fallback := &scriptedModel{reply: "rescued"}
	p := &fakeProvider{models: map[string]*scriptedModel{"primary": primary, "fallback": fallback}}
	rec := &sleepRecorder{}

	out, err := newTestGateway(p, rec).Generate(context.Background(), "primary", "prompt")

	require.NoError(t, err)
	assert.Equal(t, "rescued", out)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.slept)
}

func TestGateway_Exhausted(t *testing.T) {
	boom := errors.New("500 internal")
	primary := &scriptedModel{errs: []error{boom, boom, boom}}
	fallback := &scriptedModel{errs: []error{boom, boom, boom}}
	p := &fakeProvider{models: map[string]*scriptedModel{"primary": primary, "fallback": fallback}}
	rec := &sleepRecorder{}

	_, err := newTestGateway(p, rec).Generate(context.Background(), "primary", "prompt")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestGateway_RateLimitExhaustsEveryModel(t *testing.T) {
	limited := []error{ErrRateLimited, ErrRateLimited, ErrRateLimited}
	primary := &scriptedModel{errs: limited}
	fallback := &scriptedModel{errs: limited}
	p := &fakeProvider{models: map[string]*scriptedModel{"primary": primary, "fallback": fallback}}
	rec := &sleepRecorder{}

	_, err := newTestGateway(p, rec).Generate(context.Background(), "primary", "prompt")

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 3, fallback.calls)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second,
		5 * time.Second, 10 * time.Second, 20 * time.Second,
	}, rec.slept)
}

func TestGateway_ModelBuildFailureSkipsToFallback(t *testing.T) {
	fallback := &scriptedModel{reply: "ok"}
	p := &fakeProvider{
		models:    map[string]*scriptedModel{"fallback": fallback},
		buildErrs: map[string]error{"primary": errors.New("bad model")},
	}
	rec := &sleepRecorder{}

	out, err := newTestGateway(p, rec).Generate(context.Background(), "primary", "prompt")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Empty(t, rec.slept)
	assert.Equal(t, []string{"primary", "fallback"}, p.requested)
}

func TestGateway_FallbackNotDuplicated(t *testing.T) {
	boom := errors.New("bad request")
	fallback := &scriptedModel{errs: []error{boom}}
	p := &fakeProvider{models: map[string]*scriptedModel{"fallback": fallback}}
	rec := &sleepRecorder{}

	g := newTestGateway(p, rec)
	assert.Equal(t, []string{"fallback"}, g.Candidates("fallback"))
	assert.Equal(t, []string{"primary", "fallback"}, g.Candidates("primary"))

	_, err := g.Generate(context.Background(), "fallback", "prompt")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, fallback.calls)
}

func TestGateway_CanceledDuringBackoff(t *testing.T) {
	primary := &scriptedModel{errs: []error{ErrRateLimited}}
	p := &fakeProvider{models: map[string]*scriptedModel{"primary": primary}}

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGateway(p, "fallback", utils.NewDiscardLogger(), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}))

	_, err := g.Generate(ctx, "primary", "prompt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrRateLimited, true},
		{"wrapped sentinel", fmt.Errorf("call: %w", ErrRateLimited), true},
		{"api 429", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
		{"wrapped api 429", fmt.Errorf("gemini generation failed: %w", genai.APIError{Code: 429}), true},
		{"api 404", genai.APIError{Code: 404, Status: "NOT_FOUND"}, false},
		{"message", errors.New("googleapi: Error 429: quota"), true},
		{"other", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}
