// Package progress maintains the append-only, human-readable progress log
// at claude-progress.txt in the project root. The file doubles as memory
// between sessions: its tail is injected into the next session's prompt.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// Log appends timestamped entries to the progress file.
type Log struct {
	path string
	mu   sync.Mutex

	now func() time.Time
}

// Open returns a Log for the project root. The file is created on first
// append.
func Open(projectRoot string) *Log {
	return &Log{
		path: filepath.Join(projectRoot, paths.ProgressFile),
		now:  time.Now,
	}
}

// append writes one entry, prefixed with a timestamp line.
func (l *Log) append(header string, lines ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", l.now().Format("2006-01-02 15:04:05"), header)
	for _, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprintf(&sb, "  %s\n", line)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is workspace-derived
	if err != nil {
		return fmt.Errorf("opening progress log: %w", err)
	}
	defer f.Close() //nolint:errcheck
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("appending progress entry: %w", err)
	}
	return nil
}

// SessionStarted records the start of an agent session.
func (l *Log) SessionStarted(sessionID, featureID, featureName, model string) error {
	return l.append(
		fmt.Sprintf("SESSION START %s", sessionID),
		fmt.Sprintf("feature: %s (%s)", featureID, featureName),
		fmt.Sprintf("model: %s", model),
	)
}

// SessionEnded records the outcome of a session.
func (l *Log) SessionEnded(sessionID, outcome string, duration time.Duration, tokens int, costUSD float64) error {
	return l.append(
		fmt.Sprintf("SESSION END %s", sessionID),
		fmt.Sprintf("outcome: %s", outcome),
		fmt.Sprintf("duration: %s", duration.Round(time.Second)),
		fmt.Sprintf("tokens: %d  cost: $%.4f", tokens, costUSD),
	)
}

// Handoff records a context-threshold handoff with the agent's notes.
func (l *Log) Handoff(sessionID, featureID, notes string) error {
	lines := []string{fmt.Sprintf("feature: %s", featureID)}
	for _, n := range strings.Split(notes, "\n") {
		lines = append(lines, n)
	}
	return l.append(fmt.Sprintf("HANDOFF %s", sessionID), lines...)
}

// VerificationResult records the outcome of the verification pipeline.
func (l *Log) VerificationResult(featureID string, passed bool, detail string) error {
	status := "PASSED"
	if !passed {
		status = "FAILED"
	}
	return l.append(
		fmt.Sprintf("VERIFICATION %s: %s", status, featureID),
		detail,
	)
}

// FeatureCompleted records a feature completion.
func (l *Log) FeatureCompleted(featureID, featureName string) error {
	return l.append(fmt.Sprintf("COMPLETED %s", featureID), featureName)
}

// FeatureBlocked records a feature being blocked.
func (l *Log) FeatureBlocked(featureID, reason string) error {
	return l.append(fmt.Sprintf("BLOCKED %s", featureID), reason)
}

// Note appends a free-form entry.
func (l *Log) Note(header string, lines ...string) error {
	return l.append(header, lines...)
}

// Full returns the entire progress log. Missing file yields an empty string.
func (l *Log) Full() (string, error) {
	data, err := os.ReadFile(l.path) //nolint:gosec // path is workspace-derived
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading progress log: %w", err)
	}
	return string(data), nil
}

// Tail returns lines from the end of the log: the last `count` lines after
// skipping `offset` lines from the end. It also reports the total line
// count so callers can paginate.
func (l *Log) Tail(count, offset int) ([]string, int, error) {
	full, err := l.Full()
	if err != nil {
		return nil, 0, err
	}
	if full == "" {
		return nil, 0, nil
	}
	lines := strings.Split(strings.TrimRight(full, "\n"), "\n")
	total := len(lines)

	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	return lines[start:end], total, nil
}

// TailBytes returns up to maxBytes from the end of the log, starting at a
// line boundary. Used for prompt context injection.
func (l *Log) TailBytes(maxBytes int) (string, error) {
	full, err := l.Full()
	if err != nil {
		return "", err
	}
	if len(full) <= maxBytes {
		return full, nil
	}
	cut := full[len(full)-maxBytes:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i+1 < len(cut) {
		cut = cut[i+1:]
	}
	return cut, nil
}
