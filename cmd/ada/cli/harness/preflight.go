package harness

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/gitops"
	"github.com/adaharness/ada/cmd/ada/cli/settings"
)

// MinFreeDiskBytes is the free-space floor below which the harness refuses
// to start; session logs and checkpoints must always be writable.
const MinFreeDiskBytes = 100 * 1024 * 1024

// PreflightError aggregates every failed readiness check.
type PreflightError struct {
	Problems []string
}

func (e *PreflightError) Error() string {
	return "preflight failed: " + strings.Join(e.Problems, "; ")
}

// Preflight verifies the project is ready to run: the directory and git
// repo exist, the agent is reachable, the backlog parses, and there is
// disk headroom. All checks run so the operator sees every problem at once.
func Preflight(projectRoot string, cfg *settings.Config) error {
	var problems []string

	fi, err := os.Stat(projectRoot)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("project directory %s: %v", projectRoot, err))
	case !fi.IsDir():
		problems = append(problems, fmt.Sprintf("%s is not a directory", projectRoot))
	default:
		if repo, err := gitops.Open(projectRoot); err != nil {
			if errors.Is(err, gitops.ErrNotARepo) {
				problems = append(problems, fmt.Sprintf("%s is not a git repository (run `git init` first)", projectRoot))
			} else {
				problems = append(problems, fmt.Sprintf("opening git repository: %v", err))
			}
		} else if !cfg.AllowDirty {
			if dirty, err := repo.IsDirty(); err != nil {
				problems = append(problems, fmt.Sprintf("checking worktree status: %v", err))
			} else if dirty {
				problems = append(problems, "worktree has uncommitted changes (commit them or set allow_dirty)")
			}
		}
		if _, err := backlog.Open(projectRoot); err != nil {
			problems = append(problems, fmt.Sprintf("loading backlog: %v", err))
		}
		if free, err := freeDiskBytes(projectRoot); err == nil && free < MinFreeDiskBytes {
			problems = append(problems, fmt.Sprintf("only %dMB free disk space, need at least %dMB",
				free/(1024*1024), MinFreeDiskBytes/(1024*1024)))
		}
	}

	switch cfg.Agent {
	case settings.AgentClaude:
		if _, err := exec.LookPath(cfg.AgentBinary); err != nil {
			problems = append(problems, fmt.Sprintf("agent binary %q not found in PATH", cfg.AgentBinary))
		}
	case settings.AgentAPI:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			problems = append(problems, "ANTHROPIC_API_KEY is not set")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown agent type %q", cfg.Agent))
	}

	if len(problems) > 0 {
		return &PreflightError{Problems: problems}
	}
	return nil
}
