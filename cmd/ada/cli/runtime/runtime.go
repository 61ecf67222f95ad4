// Package runtime drives a single agent session: it consumes transport
// events, accounts tokens and cost, watches for stalls and timeouts, and
// decides the session outcome. It does not pick features or retry; that
// is the harness's job.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
	"github.com/adaharness/ada/cmd/ada/cli/cost"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/sessionlog"
)

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"     // agent reported completion
	OutcomeHandoff     Outcome = "handoff"     // context budget reached, work handed to a fresh session
	OutcomeFailure     Outcome = "failure"     // agent or transport reported an error
	OutcomeTimeout     Outcome = "timeout"     // stall or hard session timeout
	OutcomeInterrupted Outcome = "interrupted" // operator shutdown
	OutcomeCrashed     Outcome = "crashed"     // stream died without a result
)

// Config holds the runtime limits, taken from settings.
type Config struct {
	ContextThreshold float64
	ContextWindow    int
	StallTimeout     time.Duration
	SessionTimeout   time.Duration
}

// Request describes the session to run.
type Request struct {
	SessionID string
	FeatureID string
	Prompt    string
	Model     string
	WorkDir   string
}

// Result is the runner's account of a finished session.
type Result struct {
	Outcome    Outcome
	Usage      agent.Usage
	Turns      int
	CostUSD    float64
	ContextPct float64
	ResultText string
	Err        string

	// Started is false when the transport failed before the agent ran;
	// such attempts do not count against the feature's session budget.
	Started bool
}

// Publisher is the event sink the runner pushes live telemetry to.
type Publisher interface {
	Publish(name string, data any)
}

// Runner executes sessions over one transport.
type Runner struct {
	transport agent.Transport
	cfg       Config
	bus       Publisher
}

// New returns a Runner. bus may be nil.
func New(transport agent.Transport, cfg Config, bus Publisher) *Runner {
	return &Runner{transport: transport, cfg: cfg, bus: bus}
}

// drainGrace bounds how long we wait for the event channel to close after
// the session has been cancelled.
const drainGrace = 10 * time.Second

// Run executes one session and returns its result. The session log
// receives every event; the caller closes it once the final outcome is
// known. Cancelling ctx interrupts the session.
func (r *Runner) Run(ctx context.Context, req Request, log *sessionlog.Logger) *Result {
	res := &Result{}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := log.Prompt(req.Prompt); err != nil {
		logging.Warn(ctx, "failed to log prompt", "error", err)
	}

	sess, err := r.transport.Start(runCtx, agent.Request{
		Prompt:  req.Prompt,
		Model:   req.Model,
		WorkDir: req.WorkDir,
	})
	if err != nil {
		res.Outcome = OutcomeFailure
		res.Err = fmt.Sprintf("starting agent: %v", err)
		return res
	}
	res.Started = true

	st := &state{req: req, res: res, log: log, bus: r.bus, ctx: ctx, window: r.cfg.ContextWindow}

	stall := time.NewTimer(r.cfg.StallTimeout)
	defer stall.Stop()
	hard := time.NewTimer(r.cfg.SessionTimeout)
	defer hard.Stop()

	var forced Outcome
loop:
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				break loop
			}
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(r.cfg.StallTimeout)
			st.handle(ev)
			if forced == "" && r.overBudget(st) {
				forced = OutcomeHandoff
				cancel()
			}
		case <-stall.C:
			if forced == "" {
				forced = OutcomeTimeout
				res.Err = fmt.Sprintf("agent stalled: no output for %s", r.cfg.StallTimeout)
			}
			cancel()
			break loop
		case <-hard.C:
			if forced == "" {
				forced = OutcomeTimeout
				res.Err = fmt.Sprintf("session exceeded %s", r.cfg.SessionTimeout)
			}
			cancel()
			break loop
		case <-ctx.Done():
			if forced == "" {
				forced = OutcomeInterrupted
				res.Err = "session interrupted"
			}
			cancel()
			break loop
		}
	}

	// Keep accounting for events already in flight while the transport
	// shuts down.
	grace := time.After(drainGrace)
drain:
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				break drain
			}
			st.handle(ev)
		case <-grace:
			break drain
		}
	}

	waitErr := sess.Wait()

	switch {
	case forced != "":
		res.Outcome = forced
	case st.completed:
		res.Outcome = OutcomeSuccess
	case st.errMsg != "":
		res.Outcome = OutcomeFailure
		res.Err = st.errMsg
	default:
		res.Outcome = OutcomeCrashed
		if waitErr != nil {
			res.Err = fmt.Sprintf("agent stream ended without a result: %v", waitErr)
		} else {
			res.Err = "agent stream ended without a result"
		}
	}
	if res.Err == "" && st.errMsg != "" {
		res.Err = st.errMsg
	}
	return res
}

// overBudget reports whether the last usage report puts the context past
// the handoff threshold.
func (r *Runner) overBudget(st *state) bool {
	if r.cfg.ContextWindow <= 0 || r.cfg.ContextThreshold <= 0 {
		return false
	}
	return st.res.ContextPct >= r.cfg.ContextThreshold
}

// state tracks per-session accounting while events stream in.
type state struct {
	req Request
	res *Result
	log *sessionlog.Logger
	bus Publisher
	ctx context.Context

	window    int
	inTurn    bool
	completed bool
	errMsg    string
	lastText  string
}

func (st *state) handle(ev agent.Event) {
	switch ev.Kind {
	case agent.KindAssistant:
		st.startTurn()
		st.lastText = ev.Text
		st.logEvent(st.log.Assistant(ev.Text))
	case agent.KindToolCall:
		st.startTurn()
		st.logEvent(st.log.ToolCall(ev.ToolID, ev.ToolName, ev.ToolInput))
	case agent.KindToolResult:
		st.inTurn = false
		st.logEvent(st.log.ToolResult(ev.ToolID, ev.Output, ev.IsError))
	case agent.KindUsage:
		st.inTurn = false
		st.res.Usage.Add(ev.Usage)
		st.res.CostUSD += cost.Compute(st.req.Model,
			ev.Usage.InputTokens, ev.Usage.OutputTokens,
			ev.Usage.CacheReadTokens, ev.Usage.CacheWriteTokens)
		st.res.ContextPct = st.contextEstimate(ev.Usage)
		st.logEvent(st.log.ContextUpdate(sessionlog.TokenCounts{
			Input:      st.res.Usage.InputTokens,
			Output:     st.res.Usage.OutputTokens,
			CacheRead:  st.res.Usage.CacheReadTokens,
			CacheWrite: st.res.Usage.CacheWriteTokens,
		}, st.res.ContextPct))
		if st.bus != nil {
			st.bus.Publish(events.CostUpdate, map[string]any{
				"session_id":   st.req.SessionID,
				"feature_id":   st.req.FeatureID,
				"cost_usd":     st.res.CostUSD,
				"total_tokens": st.res.Usage.Total(),
				"context_pct":  st.res.ContextPct,
			})
		}
	case agent.KindCompleted:
		st.completed = true
		if ev.Result != "" {
			st.res.ResultText = ev.Result
		} else {
			st.res.ResultText = st.lastText
		}
	case agent.KindError:
		st.errMsg = ev.Err
		st.logEvent(st.log.Error(ev.Err))
	}
}

func (st *state) startTurn() {
	if !st.inTurn {
		st.res.Turns++
		st.inTurn = true
	}
}

func (st *state) logEvent(err error) {
	if err != nil {
		logging.Warn(st.ctx, "failed to write session log entry", "error", err)
	}
}

// contextEstimate sets the estimate from one usage report. Each report's
// input side reflects the full context of that agent call, so the latest
// report is the best estimate of how full the window is.
func (st *state) contextEstimate(u agent.Usage) float64 {
	if st.window <= 0 {
		return 0
	}
	return float64(u.Total()) / float64(st.window)
}
