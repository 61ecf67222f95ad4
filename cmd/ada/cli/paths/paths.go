// Package paths defines the on-disk layout of a harness-managed project:
// the backlog and progress files at the project root and the .ada workspace
// directory that holds state, logs, alerts, and hooks.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Project-root files.
const (
	BacklogFile  = "feature-list.json"
	ProgressFile = "claude-progress.txt"
)

// Workspace directories, relative to the project root.
const (
	AdaDir      = ".ada"
	StateDir    = ".ada/state"
	LogsDir     = ".ada/logs"
	SessionsDir = ".ada/logs/sessions"
	ArchiveDir  = ".ada/logs/archive"
	HooksDir    = ".ada/hooks"
	PromptsDir  = ".ada/prompts"
)

// Workspace files, relative to the project root.
const (
	ProjectFile      = ".ada/project.json"
	SessionStateFile = ".ada/state/session.json"
	HistoryFile      = ".ada/state/history.json"
	AlertsFile       = ".ada/alerts.json"
	LogIndexFile     = ".ada/logs/index.json"
	HarnessLogFile   = ".ada/logs/harness.log"
	ConfigFile       = ".ada/config.json"
	ConfigLocalFile  = ".ada/config.local.json"
)

// Workspace wraps a project root directory and resolves workspace paths
// against it.
type Workspace struct {
	Root string
}

// NewWorkspace returns a Workspace for the given project root. The root is
// made absolute so paths stay stable across working-directory changes.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	return &Workspace{Root: abs}, nil
}

// Path resolves a workspace-relative path against the project root.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// Ensure creates the .ada directory tree. Idempotent.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{AdaDir, StateDir, SessionsDir, ArchiveDir, HooksDir, PromptsDir} {
		if err := os.MkdirAll(w.Path(dir), 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// IsWorkspacePath reports whether a project-relative path is harness
// infrastructure (inside .ada). Used to exclude harness files from
// changed-file summaries.
func IsWorkspacePath(rel string) bool {
	rel = filepath.ToSlash(rel)
	return rel == AdaDir || strings.HasPrefix(rel, AdaDir+"/")
}

// featureSlugRegex strips everything that is unsafe in a file name.
var featureSlugRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FeatureSlug sanitizes a feature ID for use inside session file names.
// Truncated to 30 characters to keep log file names manageable.
func FeatureSlug(featureID string) string {
	slug := featureSlugRegex.ReplaceAllString(featureID, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "feature"
	}
	if len(slug) > 30 {
		slug = slug[:30]
	}
	return slug
}

// SessionID builds a session identifier: <YYYYMMDD>_<NNN>_<agent>_<feature>.
// NNN is a per-day counter starting at 001; the caller supplies the next
// free value (see NextSessionSeq).
func SessionID(now time.Time, seq int, agent, featureID string) string {
	return fmt.Sprintf("%s_%03d_%s_%s", now.Format("20060102"), seq, agent, FeatureSlug(featureID))
}

// NextSessionSeq scans the sessions directory for log files created today
// and returns the next free daily sequence number.
func (w *Workspace) NextSessionSeq(now time.Time) int {
	prefix := now.Format("20060102") + "_"
	entries, err := os.ReadDir(w.Path(SessionsDir))
	if err != nil {
		return 1
	}
	max := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || len(name) < len(prefix)+3 {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(name[len(prefix):len(prefix)+3], "%03d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// SessionLogPath returns the JSONL file path for a session ID.
func (w *Workspace) SessionLogPath(sessionID string) string {
	return filepath.Join(w.Path(SessionsDir), sessionID+".jsonl")
}

// ArchivePath returns the monthly tar file path for the given time.
func (w *Workspace) ArchivePath(t time.Time) string {
	return filepath.Join(w.Path(ArchiveDir), t.Format("200601")+".tar")
}
