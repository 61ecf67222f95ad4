package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/sessionlog"
)

// fakeTransport plays back a scripted event sequence.
type fakeTransport struct {
	script   []agent.Event
	hang     bool // keep the stream open until the context is cancelled
	startErr error
	waitErr  error
}

type fakeSession struct {
	ch      chan agent.Event
	waitErr error
}

func (s *fakeSession) Events() <-chan agent.Event { return s.ch }
func (s *fakeSession) Wait() error                { return s.waitErr }

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Start(ctx context.Context, _ agent.Request) (agent.Session, error) {
	if t.startErr != nil {
		return nil, t.startErr
	}
	s := &fakeSession{ch: make(chan agent.Event), waitErr: t.waitErr}
	go func() {
		defer close(s.ch)
		for _, ev := range t.script {
			select {
			case s.ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if t.hang {
			<-ctx.Done()
		}
	}()
	return s, nil
}

func testConfig() Config {
	return Config{
		ContextThreshold: 0.7,
		ContextWindow:    200_000,
		StallTimeout:     5 * time.Second,
		SessionTimeout:   30 * time.Second,
	}
}

func newTestLogger(t *testing.T) *sessionlog.Logger {
	t.Helper()
	ws, err := paths.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	log, err := sessionlog.New(ws, "20260101_001_fake_feat-1", "feat-1", "fake", "claude-sonnet-4")
	require.NoError(t, err)
	return log
}

func TestSuccessfulSession(t *testing.T) {
	tr := &fakeTransport{script: []agent.Event{
		{Kind: agent.KindAssistant, Text: "looking at the code"},
		{Kind: agent.KindToolCall, ToolID: "t1", ToolName: "bash", ToolInput: `{"command":"ls"}`},
		{Kind: agent.KindUsage, Usage: agent.Usage{InputTokens: 1000, OutputTokens: 50}},
		{Kind: agent.KindToolResult, ToolID: "t1", Output: "main.go"},
		{Kind: agent.KindAssistant, Text: "done"},
		{Kind: agent.KindUsage, Usage: agent.Usage{InputTokens: 1200, OutputTokens: 80, CacheReadTokens: 400}},
		{Kind: agent.KindCompleted, Result: "feature implemented"},
	}}

	r := New(tr, testConfig(), nil)
	res := r.Run(context.Background(), Request{
		SessionID: "20260101_001_fake_feat-1",
		FeatureID: "feat-1",
		Prompt:    "implement it",
		Model:     "claude-sonnet-4",
	}, newTestLogger(t))

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, res.Started)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 2200, res.Usage.InputTokens)
	assert.Equal(t, 130, res.Usage.OutputTokens)
	assert.Equal(t, 400, res.Usage.CacheReadTokens)
	assert.Greater(t, res.CostUSD, 0.0)
	assert.Equal(t, "feature implemented", res.ResultText)
	assert.Empty(t, res.Err)
}

func TestHandoffAtContextThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.ContextWindow = 1000
	tr := &fakeTransport{
		script: []agent.Event{
			{Kind: agent.KindAssistant, Text: "still going"},
			{Kind: agent.KindUsage, Usage: agent.Usage{InputTokens: 800, OutputTokens: 50}},
		},
		hang: true,
	}

	r := New(tr, cfg, nil)
	res := r.Run(context.Background(), Request{SessionID: "s", Model: "claude-sonnet-4"}, newTestLogger(t))

	assert.Equal(t, OutcomeHandoff, res.Outcome)
	assert.GreaterOrEqual(t, res.ContextPct, 0.7)
}

func TestStallProducesTimeoutOutcome(t *testing.T) {
	cfg := testConfig()
	cfg.StallTimeout = 50 * time.Millisecond
	tr := &fakeTransport{hang: true}

	r := New(tr, cfg, nil)
	res := r.Run(context.Background(), Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Contains(t, res.Err, "stalled")
}

func TestHardTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTimeout = 50 * time.Millisecond
	cfg.StallTimeout = time.Hour
	tr := &fakeTransport{hang: true}

	r := New(tr, cfg, nil)
	res := r.Run(context.Background(), Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Contains(t, res.Err, "exceeded")
}

func TestTransportErrorIsFailure(t *testing.T) {
	tr := &fakeTransport{script: []agent.Event{
		{Kind: agent.KindAssistant, Text: "partial"},
		{Kind: agent.KindError, Err: "rate limit exceeded"},
	}}

	r := New(tr, testConfig(), nil)
	res := r.Run(context.Background(), Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Contains(t, res.Err, "rate limit")
}

func TestStartFailureDoesNotCountAsStarted(t *testing.T) {
	tr := &fakeTransport{startErr: assert.AnError}

	r := New(tr, testConfig(), nil)
	res := r.Run(context.Background(), Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.False(t, res.Started)
	assert.Contains(t, res.Err, "starting agent")
}

func TestInterruptedByCaller(t *testing.T) {
	tr := &fakeTransport{
		script: []agent.Event{{Kind: agent.KindAssistant, Text: "working"}},
		hang:   true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := New(tr, testConfig(), nil)
	res := r.Run(ctx, Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeInterrupted, res.Outcome)
}

func TestStreamEndsWithoutResult(t *testing.T) {
	tr := &fakeTransport{
		script:  []agent.Event{{Kind: agent.KindAssistant, Text: "partial"}},
		waitErr: assert.AnError,
	}

	r := New(tr, testConfig(), nil)
	res := r.Run(context.Background(), Request{SessionID: "s"}, newTestLogger(t))

	assert.Equal(t, OutcomeCrashed, res.Outcome)
	assert.Contains(t, res.Err, "without a result")
}
