// Package verify runs the completion gates a feature must pass before it
// is marked done: lint, type check, unit tests, feature E2E tests,
// coverage, the operator's pre-complete hook, and manual approval.
// Gates run in that order and the first failure stops the pipeline.
package verify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
)

// Gate identifies a pipeline stage.
type Gate string

const (
	GateLint      Gate = "lint"
	GateTypeCheck Gate = "type_check"
	GateUnit      Gate = "unit_tests"
	GateE2E       Gate = "e2e_tests"
	GateCoverage  Gate = "coverage"
	GateHook      Gate = "pre_complete_hook"
	GateApproval  Gate = "approval"
)

// maxOutputBytes caps the command output kept for reporting; the tail is
// the useful part of a failing test run.
const maxOutputBytes = 8 * 1024

// DefaultCommandTimeout bounds each gate command.
const DefaultCommandTimeout = 10 * time.Minute

// Result reports a pipeline run.
type Result struct {
	Passed      bool
	FailedGate  Gate
	Output      string
	CoveragePct float64
	GatesRun    []Gate
}

// ApprovalFunc asks the operator to sign off on a completed feature.
type ApprovalFunc func(ctx context.Context, feature *backlog.Feature) (bool, error)

// Runner executes the gate pipeline for one project.
type Runner struct {
	ProjectRoot string
	Config      settings.VerificationConfig

	// Approve is consulted when the feature requires manual approval.
	// Nil approves automatically, for headless runs.
	Approve ApprovalFunc

	// CommandTimeout bounds each gate command; zero means the default.
	CommandTimeout time.Duration
}

// Run executes every configured gate for the feature. requireApproval
// comes from settings and adds the final manual gate.
func (r *Runner) Run(ctx context.Context, feature *backlog.Feature, requireApproval bool) (*Result, error) {
	res := &Result{}

	commands := []struct {
		gate Gate
		cmd  string
	}{
		{GateLint, r.Config.LintCommand},
		{GateTypeCheck, r.Config.TypeCheckCommand},
		{GateUnit, r.Config.UnitTestCommand},
		{GateE2E, r.e2eCommand(feature)},
	}
	for _, c := range commands {
		if c.cmd == "" {
			continue
		}
		res.GatesRun = append(res.GatesRun, c.gate)
		output, err := r.runCommand(ctx, c.cmd)
		if err != nil {
			res.FailedGate = c.gate
			res.Output = output
			logging.Info(ctx, "verification gate failed",
				"gate", string(c.gate), "feature_id", feature.ID, "error", err)
			return res, nil
		}
	}

	if r.Config.CoverageCommand != "" {
		res.GatesRun = append(res.GatesRun, GateCoverage)
		pct, output, err := r.runCoverage(ctx)
		if err != nil {
			res.FailedGate = GateCoverage
			res.Output = output
			if output == "" {
				res.Output = err.Error()
			}
			return res, nil
		}
		res.CoveragePct = pct
		if pct < r.Config.MinCoveragePct {
			res.FailedGate = GateCoverage
			res.Output = fmt.Sprintf("coverage %.1f%% is below the required %.1f%%", pct, r.Config.MinCoveragePct)
			return res, nil
		}
	}

	if hook := r.findHook(); hook != "" {
		res.GatesRun = append(res.GatesRun, GateHook)
		output, err := r.runHook(ctx, hook, feature)
		if err != nil {
			res.FailedGate = GateHook
			res.Output = output
			return res, nil
		}
	}

	if requireApproval {
		res.GatesRun = append(res.GatesRun, GateApproval)
		if r.Approve != nil {
			ok, err := r.Approve(ctx, feature)
			if err != nil {
				return nil, fmt.Errorf("requesting approval: %w", err)
			}
			if !ok {
				res.FailedGate = GateApproval
				res.Output = "feature rejected by operator"
				return res, nil
			}
		}
	}

	res.Passed = true
	return res, nil
}

// e2eCommand substitutes the feature's test filter into the E2E command.
func (r *Runner) e2eCommand(feature *backlog.Feature) string {
	cmd := r.Config.E2ECommand
	if cmd == "" {
		return ""
	}
	return strings.ReplaceAll(cmd, "{pattern}", feature.ID)
}

// runCommand executes a shell command in the project root and returns its
// combined output tail.
func (r *Runner) runCommand(ctx context.Context, command string) (string, error) {
	timeout := r.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command) //nolint:gosec // commands come from operator config
	cmd.Dir = r.ProjectRoot
	out, err := cmd.CombinedOutput()
	return tail(string(out)), err
}

// runCoverage runs the coverage command and parses the configured report.
func (r *Runner) runCoverage(ctx context.Context) (float64, string, error) {
	output, err := r.runCommand(ctx, r.Config.CoverageCommand)
	if err != nil {
		return 0, output, fmt.Errorf("coverage command failed: %w", err)
	}
	reportPath := r.Config.CoverageReportPath
	if reportPath == "" {
		return 0, "", fmt.Errorf("%w: no coverage report path configured", ErrCoverageUnparseable)
	}
	if !filepath.IsAbs(reportPath) {
		reportPath = filepath.Join(r.ProjectRoot, reportPath)
	}
	pct, err := ParseCoverageReport(reportPath)
	if err != nil {
		return 0, "", err
	}
	return pct, "", nil
}

// hookNames are tried in order under .ada/hooks/.
var hookNames = []string{
	"pre-complete.sh",
	"pre-complete.ps1",
	"pre-complete.bat",
	"pre-complete.cmd",
}

// findHook returns the first pre-complete hook present, or "".
func (r *Runner) findHook() string {
	dir := filepath.Join(r.ProjectRoot, paths.HooksDir)
	for _, name := range hookNames {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// runHook executes the pre-complete hook with the feature described in
// its environment.
func (r *Runner) runHook(ctx context.Context, hookPath string, feature *backlog.Feature) (string, error) {
	timeout := r.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch strings.ToLower(filepath.Ext(hookPath)) {
	case ".ps1":
		cmd = exec.CommandContext(cmdCtx, "powershell", "-NoProfile", "-File", hookPath)
	case ".bat", ".cmd":
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", hookPath) //nolint:gosec // hook path is workspace-derived
	default:
		cmd = exec.CommandContext(cmdCtx, "sh", hookPath) //nolint:gosec // hook path is workspace-derived
	}
	cmd.Dir = r.ProjectRoot
	cmd.Env = append(os.Environ(),
		"ADA_PROJECT_PATH="+r.ProjectRoot,
		"ADA_FEATURE_ID="+feature.ID,
		"ADA_FEATURE_NAME="+feature.Name,
		"ADA_FEATURE_CATEGORY="+string(feature.Category),
	)
	out, err := cmd.CombinedOutput()
	return tail(string(out)), err
}

// tail keeps the last maxOutputBytes of command output.
func tail(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return "... [output truncated]\n" + s[len(s)-maxOutputBytes:]
}
