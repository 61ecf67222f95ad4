// Package checkpoint persists the in-flight session snapshot at
// .ada/state/session.json. The snapshot is written at every transition so a
// crashed harness can recover on the next start.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// Phase is where the harness was when the snapshot was taken.
type Phase string

const (
	PhaseSelecting  Phase = "selecting"
	PhaseRunning    Phase = "running"
	PhaseVerifying  Phase = "verifying"
	PhaseRetryWait  Phase = "retry_wait"
	PhaseFinalizing Phase = "finalizing"
)

// Snapshot is the persisted harness state for the active session.
type Snapshot struct {
	SessionID string `json:"session_id"`
	FeatureID string `json:"feature_id"`
	Agent     string `json:"agent"`
	Model     string `json:"model"`
	Attempt   int    `json:"attempt"`
	Phase     Phase  `json:"phase"`

	// LastCommitHash is HEAD as observed before the attempt, so recovery
	// knows the last good commit.
	LastCommitHash string `json:"last_commit_hash,omitempty"`

	// HandoffNotes carries the session's handoff text until it is safely
	// appended to the feature.
	HandoffNotes string `json:"handoff_notes,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the snapshot file.
type Store struct {
	ws *paths.Workspace
}

// NewStore returns a Store bound to the workspace.
func NewStore(ws *paths.Workspace) *Store {
	return &Store{ws: ws}
}

// Load returns the current snapshot, or (nil, nil) when none exists.
func (s *Store) Load() (*Snapshot, error) {
	var snap Snapshot
	if err := jsonutil.LoadJSON(s.ws.Path(paths.SessionStateFile), &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session checkpoint: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically, stamping UpdatedAt.
func (s *Store) Save(snap *Snapshot) error {
	if err := s.ws.Ensure(); err != nil {
		return err
	}
	snap.UpdatedAt = time.Now().UTC()
	if err := jsonutil.SaveJSON(s.ws.Path(paths.SessionStateFile), snap); err != nil {
		return fmt.Errorf("saving session checkpoint: %w", err)
	}
	return nil
}

// Clear removes the snapshot. Missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.ws.Path(paths.SessionStateFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing session checkpoint: %w", err)
	}
	return nil
}
