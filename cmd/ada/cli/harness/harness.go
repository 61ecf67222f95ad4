// Package harness is the scheduler: it selects runnable features, runs
// agent sessions for them, verifies completed work, retries failures with
// backoff, and records everything in the workspace stores.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
	"github.com/adaharness/ada/cmd/ada/cli/alerts"
	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/checkpoint"
	"github.com/adaharness/ada/cmd/ada/cli/classify"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/gitops"
	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/progress"
	"github.com/adaharness/ada/cmd/ada/cli/retry"
	"github.com/adaharness/ada/cmd/ada/cli/runtime"
	"github.com/adaharness/ada/cmd/ada/cli/sessionlog"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
	"github.com/adaharness/ada/cmd/ada/cli/verify"
)

// ErrInterrupted is returned from Run after an operator shutdown.
var ErrInterrupted = errors.New("harness interrupted")

// HaltError stops the harness for error classes that retrying cannot fix,
// such as exhausted credit or bad credentials.
type HaltError struct {
	Class  classify.Class
	Reason string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("harness halted (%s): %s", e.Class, e.Reason)
}

// Status is the harness state served by the telemetry API.
type Status struct {
	State          string    `json:"state"`
	CurrentFeature string    `json:"current_feature,omitempty"`
	CurrentSession string    `json:"current_session,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSec      float64   `json:"uptime_sec"`
}

// Harness wires the stores, the transport, and the policies together.
type Harness struct {
	projectRoot string
	cfg         *settings.Config
	transport   agent.Transport

	ws          *paths.Workspace
	backlog     *backlog.Store
	progress    *progress.Log
	checkpoints *checkpoint.Store
	hist        *history.Store
	alertStore  *alerts.Store
	bus         *events.Bus
	repo        *gitops.Repo
	verifier    *verify.Runner
	retrier     *retry.Policy
	runner      *runtime.Runner

	// sleep is interruptible backoff; injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	// resumeFeature/resumeAttempt seed the retry counter for the feature a
	// recovered checkpoint was working on.
	resumeFeature string
	resumeAttempt int

	mu        sync.Mutex
	state     string
	curFeat   string
	curSess   string
	startedAt time.Time
}

// Option tweaks harness construction.
type Option func(*Harness)

// WithApproval sets the manual-approval prompt used by the verification
// pipeline.
func WithApproval(fn verify.ApprovalFunc) Option {
	return func(h *Harness) { h.verifier.Approve = fn }
}

// New opens every store under projectRoot and returns a ready harness.
func New(projectRoot string, cfg *settings.Config, transport agent.Transport, bus *events.Bus, opts ...Option) (*Harness, error) {
	ws, err := paths.NewWorkspace(projectRoot)
	if err != nil {
		return nil, err
	}
	if err := ws.Ensure(); err != nil {
		return nil, err
	}
	bl, err := backlog.Open(projectRoot)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(ws)
	if err != nil {
		return nil, err
	}
	alertStore, err := alerts.Open(ws, bus)
	if err != nil {
		return nil, err
	}
	alertStore.SetDedupeWindow(cfg.AlertDedupe())
	repo, err := gitops.Open(projectRoot)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		projectRoot: projectRoot,
		cfg:         cfg,
		transport:   transport,
		ws:          ws,
		backlog:     bl,
		progress:    progress.Open(projectRoot),
		checkpoints: checkpoint.NewStore(ws),
		hist:        hist,
		alertStore:  alertStore,
		bus:         bus,
		repo:        repo,
		verifier: &verify.Runner{
			ProjectRoot: projectRoot,
			Config:      cfg.Verification,
		},
		retrier: retry.NewPolicy(cfg.MaxRetries),
		runner: runtime.New(transport, runtime.Config{
			ContextThreshold: cfg.ContextThreshold,
			ContextWindow:    cfg.ContextWindow,
			StallTimeout:     cfg.StallTimeout(),
			SessionTimeout:   cfg.SessionTimeout(),
		}, bus),
		sleep: sleepCtx,
		now:   time.Now,
		state: "idle",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Backlog exposes the backlog store for the telemetry API.
func (h *Harness) Backlog() *backlog.Store { return h.backlog }

// History exposes the session history for the telemetry API.
func (h *Harness) History() *history.Store { return h.hist }

// Alerts exposes the alert store for the telemetry API.
func (h *Harness) Alerts() *alerts.Store { return h.alertStore }

// Progress exposes the progress log for the telemetry API.
func (h *Harness) Progress() *progress.Log { return h.progress }

// Workspace exposes the workspace paths for the telemetry API.
func (h *Harness) Workspace() *paths.Workspace { return h.ws }

// Status returns a snapshot of the harness state.
func (h *Harness) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Status{
		State:          h.state,
		CurrentFeature: h.curFeat,
		CurrentSession: h.curSess,
		StartedAt:      h.startedAt,
	}
	if !h.startedAt.IsZero() {
		s.UptimeSec = time.Since(h.startedAt).Seconds()
	}
	return s
}

func (h *Harness) setState(state, featureID, sessionID string) {
	h.mu.Lock()
	h.state = state
	h.curFeat = featureID
	h.curSess = sessionID
	h.mu.Unlock()
	h.bus.Publish(events.StatusUpdated, h.Status())
}

// Run executes the harness loop until the backlog is finished, a halt
// class stops it, or ctx is cancelled. Returns ErrInterrupted on shutdown
// and *HaltError on billing/auth failures.
func (h *Harness) Run(ctx context.Context) error {
	h.mu.Lock()
	h.startedAt = h.now()
	h.mu.Unlock()

	if err := h.recoverCheckpoint(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			h.setState("stopped", "", "")
			return ErrInterrupted
		}

		// Operator edits to feature-list.json are picked up between
		// features.
		if err := h.backlog.Reload(); err != nil {
			logging.Warn(ctx, "backlog reload failed, keeping in-memory state", "error", err)
		}

		feat := h.backlog.SelectNext()
		if feat == nil {
			counts := h.backlog.Counts()
			h.setState("stopped", "", "")
			if counts.Completed == counts.Total {
				logging.Info(ctx, "backlog complete", "features", counts.Total)
			} else {
				logging.Info(ctx, "no runnable features left",
					"pending", counts.Pending, "blocked", counts.Blocked)
			}
			return nil
		}

		if err := h.runFeature(ctx, feat); err != nil {
			h.setState("stopped", "", "")
			return err
		}
	}
}

// recoverCheckpoint handles a snapshot left behind by a crashed run: the
// in-flight session is recorded as interrupted and the snapshot cleared.
func (h *Harness) recoverCheckpoint(ctx context.Context) error {
	snap, err := h.checkpoints.Load()
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	logging.Info(ctx, "recovering from interrupted run",
		"session_id", snap.SessionID, "feature_id", snap.FeatureID, "phase", string(snap.Phase))

	if _, err := h.hist.Get(snap.SessionID); errors.Is(err, history.ErrNotFound) {
		rec := &history.Record{
			SessionID:   snap.SessionID,
			FeatureID:   snap.FeatureID,
			Agent:       snap.Agent,
			Model:       snap.Model,
			Outcome:     string(runtime.OutcomeInterrupted),
			StartedAt:   snap.StartedAt,
			EndedAt:     h.now().UTC(),
			DurationSec: h.now().Sub(snap.StartedAt).Seconds(),
			Error:       "harness died mid-session",
		}
		if err := h.hist.Append(rec); err != nil {
			return err
		}
	}
	// Handoff notes that never reached the backlog survive in the snapshot.
	if snap.HandoffNotes != "" {
		note := fmt.Sprintf("Handoff from session %s:\n%s", snap.SessionID, snap.HandoffNotes)
		if err := h.backlog.AppendNote(snap.FeatureID, note); err != nil {
			logging.Warn(ctx, "failed to restore handoff notes", "error", err)
		}
	}

	// The interrupted attempt's retry budget carries over so a harness that
	// dies mid-retry-wait cannot grant the feature a fresh set of retries.
	h.resumeFeature = snap.FeatureID
	h.resumeAttempt = snap.Attempt

	if err := h.progress.Note(fmt.Sprintf("RECOVERED after interrupted session %s", snap.SessionID)); err != nil {
		logging.Warn(ctx, "failed to note recovery in progress log", "error", err)
	}
	return h.checkpoints.Clear()
}

// headHash returns the current HEAD commit hash, or empty on an unborn
// branch or read failure.
func (h *Harness) headHash(ctx context.Context) string {
	head, err := h.repo.Head()
	if err != nil {
		logging.Warn(ctx, "failed to read HEAD", "error", err)
		return ""
	}
	if head == nil {
		return ""
	}
	return head.Hash
}

// runFeature drives one feature through sessions and retries until it
// completes, blocks, hands off, or the harness must stop.
func (h *Harness) runFeature(ctx context.Context, feat *backlog.Feature) error {
	ctx = logging.WithFeature(ctx, feat.ID)
	retries := 0
	if feat.ID == h.resumeFeature {
		retries = h.resumeAttempt
		h.resumeFeature = ""
		h.resumeAttempt = 0
	}

	for {
		res, sessionID, err := h.runSession(ctx, feat, retries)
		if err != nil {
			return err
		}

		switch res.Outcome {
		case runtime.OutcomeSuccess:
			// On verification failure the feature stays in_progress and
			// the next session gets the failure context.
			if _, err := h.finishSuccess(ctx, feat, sessionID, res); err != nil {
				return err
			}
			return h.checkpoints.Clear()

		case runtime.OutcomeHandoff:
			// Park the notes in the snapshot first so a crash between here
			// and the backlog append cannot lose them.
			if err := h.checkpoints.Save(&checkpoint.Snapshot{
				SessionID:      sessionID,
				FeatureID:      feat.ID,
				Agent:          h.transport.Name(),
				Attempt:        retries,
				Phase:          checkpoint.PhaseFinalizing,
				LastCommitHash: h.headHash(ctx),
				HandoffNotes:   res.ResultText,
				StartedAt:      h.now().UTC(),
			}); err != nil {
				return err
			}
			if err := h.finishHandoff(ctx, feat, sessionID, res); err != nil {
				return err
			}
			return h.checkpoints.Clear()

		case runtime.OutcomeInterrupted:
			// The session is already recorded in history, so the
			// checkpoint is no longer needed.
			_ = h.checkpoints.Clear()
			return ErrInterrupted

		default: // failure, timeout, crashed
			retry, err := h.handleFailure(ctx, feat, sessionID, res, retries)
			if err != nil {
				return err
			}
			if !retry {
				return h.checkpoints.Clear()
			}
			retries++
		}
	}
}

// runSession runs one agent session and records it everywhere.
func (h *Harness) runSession(ctx context.Context, feat *backlog.Feature, attempt int) (*runtime.Result, string, error) {
	now := h.now()
	seq := h.ws.NextSessionSeq(now)
	sessionID := paths.SessionID(now, seq, h.transport.Name(), feat.ID)
	model := feat.ModelOverride
	if model == "" {
		model = h.cfg.Model
	}
	ctx = logging.WithSession(ctx, sessionID)

	if feat.Status != backlog.StatusInProgress {
		if err := h.backlog.SetStatus(feat.ID, backlog.StatusInProgress); err != nil {
			return nil, "", err
		}
		feat.Status = backlog.StatusInProgress
		h.bus.Publish(events.FeatureUpdated, feat)
	}

	lastCommit := h.headHash(ctx)
	if err := h.checkpoints.Save(&checkpoint.Snapshot{
		SessionID:      sessionID,
		FeatureID:      feat.ID,
		Agent:          h.transport.Name(),
		Model:          model,
		Attempt:        attempt,
		Phase:          checkpoint.PhaseRunning,
		LastCommitHash: lastCommit,
		StartedAt:      now.UTC(),
	}); err != nil {
		return nil, "", err
	}

	sl, err := sessionlog.New(h.ws, sessionID, feat.ID, h.transport.Name(), model)
	if err != nil {
		return nil, "", err
	}

	firstSession := h.backlog.Counts().Completed == 0 && h.hist.Count() == 0
	tail, err := h.progress.TailBytes(progressTailBytes)
	if err != nil {
		logging.Warn(ctx, "failed to read progress tail", "error", err)
	}
	prompt := buildPrompt(feat, tail, firstSession)

	if err := h.progress.SessionStarted(sessionID, feat.ID, feat.Name, model); err != nil {
		logging.Warn(ctx, "failed to log session start", "error", err)
	}
	h.setState("running", feat.ID, sessionID)
	h.bus.Publish(events.SessionStarted, map[string]any{
		"session_id": sessionID,
		"feature_id": feat.ID,
		"model":      model,
	})
	logging.Info(ctx, "session starting", "model", model, "attempt", attempt)

	dirtyBefore, err := h.repo.ChangedFiles()
	if err != nil {
		logging.Warn(ctx, "failed to read worktree status", "error", err)
	}

	start := h.now()
	res := h.runner.Run(ctx, runtime.Request{
		SessionID: sessionID,
		FeatureID: feat.ID,
		Prompt:    prompt,
		Model:     model,
		WorkDir:   h.projectRoot,
	}, sl)
	duration := h.now().Sub(start)

	if err := sl.Close(string(res.Outcome), sessionlog.TokenCounts{
		Input:      res.Usage.InputTokens,
		Output:     res.Usage.OutputTokens,
		CacheRead:  res.Usage.CacheReadTokens,
		CacheWrite: res.Usage.CacheWriteTokens,
	}, res.Turns, res.CostUSD, res.Err); err != nil {
		logging.Warn(ctx, "failed to close session log", "error", err)
	}

	dirtyAfter, err := h.repo.ChangedFiles()
	if err != nil {
		logging.Warn(ctx, "failed to read worktree status", "error", err)
	}

	rec := &history.Record{
		SessionID:        sessionID,
		FeatureID:        feat.ID,
		FeatureName:      feat.Name,
		Agent:            h.transport.Name(),
		Model:            model,
		Outcome:          string(res.Outcome),
		StartedAt:        start.UTC(),
		EndedAt:          h.now().UTC(),
		DurationSec:      duration.Seconds(),
		InputTokens:      res.Usage.InputTokens,
		OutputTokens:     res.Usage.OutputTokens,
		CacheReadTokens:  res.Usage.CacheReadTokens,
		CacheWriteTokens: res.Usage.CacheWriteTokens,
		Turns:            res.Turns,
		CostUSD:          res.CostUSD,
		FilesChanged:     newlyChanged(dirtyBefore, dirtyAfter),
		Error:            res.Err,
	}
	if res.Err != "" {
		rec.ErrorClass = string(classify.Text(res.Err))
	}
	if err := h.hist.Append(rec); err != nil {
		return nil, "", err
	}

	if err := h.progress.SessionEnded(sessionID, string(res.Outcome), duration, res.Usage.Total(), res.CostUSD); err != nil {
		logging.Warn(ctx, "failed to log session end", "error", err)
	}
	h.bus.Publish(events.SessionEnded, rec)
	logging.LogDuration(ctx, slog.LevelInfo, "session finished", start,
		"outcome", string(res.Outcome), "turns", res.Turns, "cost_usd", res.CostUSD)

	if _, err := sessionlog.Rotate(h.ws); err != nil {
		logging.Warn(ctx, "session log rotation failed", "error", err)
	}
	return res, sessionID, nil
}

// finishSuccess verifies a successful session and completes or holds the
// feature. Returns true when the feature completed.
func (h *Harness) finishSuccess(ctx context.Context, feat *backlog.Feature, sessionID string, res *runtime.Result) (bool, error) {
	h.setState("verifying", feat.ID, sessionID)
	if err := h.checkpoints.Save(&checkpoint.Snapshot{
		SessionID: sessionID,
		FeatureID: feat.ID,
		Agent:     h.transport.Name(),
		Phase:     checkpoint.PhaseVerifying,
		StartedAt: h.now().UTC(),
	}); err != nil {
		return false, err
	}

	vres, err := h.verifier.Run(ctx, feat, h.cfg.RequiresApproval(feat.ID))
	if err != nil {
		return false, err
	}

	if !vres.Passed {
		detail := fmt.Sprintf("gate %s failed", vres.FailedGate)
		if err := h.progress.VerificationResult(feat.ID, false, detail); err != nil {
			logging.Warn(ctx, "failed to log verification result", "error", err)
		}
		note := fmt.Sprintf("Session %s: verification failed at %s.\n%s",
			sessionID, vres.FailedGate, vres.Output)
		if err := h.backlog.AppendNote(feat.ID, note); err != nil {
			return false, err
		}
		if err := h.backlog.AddSessionSpent(feat.ID); err != nil {
			return false, err
		}
		h.bus.Publish(events.FeatureUpdated, feat.ID)
		logging.Info(ctx, "verification failed", "gate", string(vres.FailedGate))
		return false, nil
	}

	if err := h.progress.VerificationResult(feat.ID, true, ""); err != nil {
		logging.Warn(ctx, "failed to log verification result", "error", err)
	}
	if err := h.backlog.AddSessionSpent(feat.ID); err != nil {
		return false, err
	}
	if err := h.backlog.SetStatus(feat.ID, backlog.StatusCompleted); err != nil {
		return false, err
	}
	if err := h.progress.FeatureCompleted(feat.ID, feat.Name); err != nil {
		logging.Warn(ctx, "failed to log feature completion", "error", err)
	}

	if h.cfg.AutoCommitEnabled() {
		if hash, err := h.repo.CommitFeature(feat.ID, feat.Name); err != nil {
			logging.Warn(ctx, "feature commit failed", "error", err)
		} else if hash != "" {
			if err := h.hist.AttachCommit(sessionID, hash); err != nil {
				logging.Warn(ctx, "failed to record commit in history", "error", err)
			}
			logging.Info(ctx, "feature committed", "commit", hash)
		}
	}

	if _, err := h.alertStore.Raise(alerts.TypeFeatureCompleted, alerts.SeveritySuccess,
		fmt.Sprintf("Feature completed: %s", feat.Name),
		fmt.Sprintf("%s passed verification after %d sessions.", feat.ID, feat.SessionsSpent+1),
		map[string]string{"feature_id": feat.ID, "session_id": sessionID}); err != nil {
		logging.Warn(ctx, "failed to raise completion alert", "error", err)
	}

	h.bus.Publish(events.BacklogUpdated, h.backlog.Counts())
	logging.Info(ctx, "feature completed")
	return true, nil
}

// finishHandoff records a context-threshold handoff: WIP commit, notes,
// alert. The feature stays in_progress for the next session.
func (h *Harness) finishHandoff(ctx context.Context, feat *backlog.Feature, sessionID string, res *runtime.Result) error {
	if h.cfg.AutoCommitEnabled() {
		if hash, err := h.repo.CommitHandoff(feat.Name, sessionID); err != nil {
			logging.Warn(ctx, "handoff commit failed", "error", err)
		} else if hash != "" {
			if err := h.hist.AttachCommit(sessionID, hash); err != nil {
				logging.Warn(ctx, "failed to record commit in history", "error", err)
			}
			logging.Info(ctx, "handoff committed", "commit", hash)
		}
	}

	notes := res.ResultText
	if notes == "" {
		notes = "no handoff notes produced"
	}
	if err := h.backlog.AppendNote(feat.ID, fmt.Sprintf("Handoff from session %s:\n%s", sessionID, notes)); err != nil {
		return err
	}
	if err := h.backlog.AddSessionSpent(feat.ID); err != nil {
		return err
	}
	if err := h.progress.Handoff(sessionID, feat.ID, notes); err != nil {
		logging.Warn(ctx, "failed to log handoff", "error", err)
	}

	if _, err := h.alertStore.Raise(alerts.TypeHandoffOccurred, alerts.SeverityInfo,
		fmt.Sprintf("Session handoff: %s", feat.Name),
		fmt.Sprintf("Session %s reached the context threshold; a fresh session will continue.", sessionID),
		map[string]string{"feature_id": feat.ID, "session_id": sessionID}); err != nil {
		logging.Warn(ctx, "failed to raise handoff alert", "error", err)
	}
	h.bus.Publish(events.FeatureUpdated, feat.ID)
	logging.Info(ctx, "session handed off", "context_pct", res.ContextPct)
	return nil
}

// handleFailure classifies a failed session and either schedules a retry
// (returns true), blocks the feature, or halts the harness.
func (h *Harness) handleFailure(ctx context.Context, feat *backlog.Feature, sessionID string, res *runtime.Result, retries int) (bool, error) {
	class := classify.Text(res.Err)
	logging.Warn(ctx, "session failed",
		"outcome", string(res.Outcome), "class", string(class), "error", res.Err)

	if res.Started {
		if err := h.backlog.AddSessionSpent(feat.ID); err != nil {
			return false, err
		}
	}

	if class.Policy().Halt {
		if _, err := h.alertStore.Raise(alerts.TypeSessionFailed, alerts.SeverityError,
			fmt.Sprintf("Harness halted: %s", class),
			res.Err,
			map[string]string{"feature_id": feat.ID, "session_id": sessionID}); err != nil {
			logging.Warn(ctx, "failed to raise halt alert", "error", err)
		}
		if err := h.progress.Note(fmt.Sprintf("HALTED (%s)", class), res.Err); err != nil {
			logging.Warn(ctx, "failed to log halt", "error", err)
		}
		return false, &HaltError{Class: class, Reason: res.Err}
	}

	if h.retrier.ShouldRetry(class, retries) {
		delay := h.retrier.Delay(class, retries)
		h.setState("retry_wait", feat.ID, "")
		if err := h.checkpoints.Save(&checkpoint.Snapshot{
			SessionID:      sessionID,
			FeatureID:      feat.ID,
			Agent:          h.transport.Name(),
			Attempt:        retries + 1,
			Phase:          checkpoint.PhaseRetryWait,
			LastCommitHash: h.headHash(ctx),
			StartedAt:      h.now().UTC(),
		}); err != nil {
			return false, err
		}
		logging.Info(ctx, "retrying after backoff",
			"class", string(class), "delay", delay.String(), "retry", retries+1)
		if err := h.sleep(ctx, delay); err != nil {
			return false, ErrInterrupted
		}
		return true, nil
	}

	reason := fmt.Sprintf("retries exhausted (%s): %s", class, res.Err)
	if err := h.backlog.MarkBlocked(feat.ID, reason); err != nil {
		return false, err
	}
	if err := h.progress.FeatureBlocked(feat.ID, reason); err != nil {
		logging.Warn(ctx, "failed to log blocked feature", "error", err)
	}
	if _, err := h.alertStore.Raise(alerts.TypeFeatureBlocked, alerts.SeverityWarning,
		fmt.Sprintf("Feature blocked: %s", feat.Name),
		reason,
		map[string]string{"feature_id": feat.ID, "session_id": sessionID}); err != nil {
		logging.Warn(ctx, "failed to raise blocked alert", "error", err)
	}
	h.bus.Publish(events.FeatureUpdated, feat.ID)
	h.bus.Publish(events.BacklogUpdated, h.backlog.Counts())
	return false, nil
}

// newlyChanged returns the paths in after that were already clean before
// the session, sorted.
func newlyChanged(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, f := range before {
		seen[f] = true
	}
	var out []string
	for _, f := range after {
		if !seen[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// sleepCtx sleeps for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
