package backlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// ErrNotFound is returned when a feature ID does not exist in the backlog.
var ErrNotFound = errors.New("feature not found")

// Store owns feature-list.json. All mutations persist atomically before
// returning; reads serve from the in-memory copy.
type Store struct {
	path string

	mu          sync.RWMutex
	projectName string
	projectPath string
	features    []*Feature
}

// Open loads the backlog document from feature-list.json under projectRoot
// and validates it. A missing file yields an empty backlog with project
// identity derived from the directory.
func Open(projectRoot string) (*Store, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	s := &Store{path: filepath.Join(abs, paths.BacklogFile)}
	if err := s.load(); err != nil {
		return nil, err
	}
	if s.projectName == "" {
		s.projectName = filepath.Base(abs)
	}
	if s.projectPath == "" {
		s.projectPath = abs
	}
	return s, nil
}

func (s *Store) load() error {
	var doc Document
	if err := jsonutil.LoadJSON(s.path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.features = nil
			return nil
		}
		return err
	}
	if doc.ProjectName == "" {
		return fmt.Errorf("invalid backlog: missing project_name")
	}
	if doc.ProjectPath == "" {
		return fmt.Errorf("invalid backlog: missing project_path")
	}
	if err := validate(doc.Features); err != nil {
		return fmt.Errorf("invalid backlog: %w", err)
	}
	s.projectName = doc.ProjectName
	s.projectPath = doc.ProjectPath
	s.features = doc.Features
	return nil
}

// ProjectName returns the backlog document's project name.
func (s *Store) ProjectName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectName
}

// ProjectPath returns the backlog document's project root path.
func (s *Store) ProjectPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectPath
}

// Reload re-reads the backlog from disk, for picking up operator edits.
// The completed-never-regresses invariant is enforced against the previous
// in-memory state.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]*Feature, len(s.features))
	for _, f := range s.features {
		prev[f.ID] = f
	}
	if err := s.load(); err != nil {
		return err
	}
	for _, f := range s.features {
		old, ok := prev[f.ID]
		if !ok {
			continue
		}
		if old.Status == StatusCompleted && f.Status != StatusCompleted {
			return fmt.Errorf("invalid backlog: completed feature %s regressed to %s", f.ID, f.Status)
		}
		if f.SessionsSpent < old.SessionsSpent {
			return fmt.Errorf("invalid backlog: feature %s sessions_spent decreased (%d -> %d)",
				f.ID, old.SessionsSpent, f.SessionsSpent)
		}
	}
	return nil
}

// validate checks backlog-wide invariants: per-feature fields, unique IDs,
// resolvable dependencies, and an acyclic dependency graph.
func validate(features []*Feature) error {
	ids := make(map[string]bool, len(features))
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate feature id %s", f.ID)
		}
		ids[f.ID] = true
	}
	for _, f := range features {
		for _, dep := range f.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("feature %s depends on unknown feature %s", f.ID, dep)
			}
		}
	}
	return checkAcyclic(features)
}

// checkAcyclic detects dependency cycles with a three-color DFS.
func checkAcyclic(features []*Feature) error {
	byID := make(map[string]*Feature, len(features))
	for _, f := range features {
		byID[f.ID] = f
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(features))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("dependency cycle involving feature %s", id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, f := range features {
		if err := visit(f.ID); err != nil {
			return err
		}
	}
	return nil
}

// save persists the current document atomically. Caller holds s.mu.
func (s *Store) save() error {
	doc := Document{
		ProjectName: s.projectName,
		ProjectPath: s.projectPath,
		Features:    s.features,
	}
	if err := jsonutil.SaveJSON(s.path, &doc); err != nil {
		return fmt.Errorf("saving backlog: %w", err)
	}
	return nil
}

// Save persists the backlog. Exposed for operator tooling that builds a
// backlog programmatically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Add appends a feature and persists. The feature must keep the backlog
// valid.
func (s *Store) Add(f *Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]*Feature{}, s.features...), f)
	if err := validate(next); err != nil {
		return err
	}
	s.features = next
	return s.save()
}

// Get returns a copy of the feature with the given ID.
func (s *Store) Get(id string) (*Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.features {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns a copy of all features in file order.
func (s *Store) List() []*Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Feature, len(s.features))
	for i, f := range s.features {
		cp := *f
		out[i] = &cp
	}
	return out
}

// Counts returns status totals.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	c.Total = len(s.features)
	for _, f := range s.features {
		switch f.Status {
		case StatusPending:
			c.Pending++
		case StatusInProgress:
			c.InProgress++
		case StatusCompleted:
			c.Completed++
		case StatusBlocked:
			c.Blocked++
		}
	}
	return c
}

// SelectNext returns the next runnable feature, or nil when nothing is
// runnable. A feature is runnable when its status is pending or in_progress
// and every dependency is completed. in_progress features come first, then
// higher priority, then file order.
func (s *Store) SelectNext() *Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := make(map[string]bool, len(s.features))
	for _, f := range s.features {
		if f.Status == StatusCompleted {
			completed[f.ID] = true
		}
	}

	type candidate struct {
		f     *Feature
		index int
	}
	var runnable []candidate
	for i, f := range s.features {
		if f.Status != StatusPending && f.Status != StatusInProgress {
			continue
		}
		ready := true
		for _, dep := range f.DependsOn {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			runnable = append(runnable, candidate{f: f, index: i})
		}
	}
	if len(runnable) == 0 {
		return nil
	}

	sort.SliceStable(runnable, func(i, j int) bool {
		a, b := runnable[i], runnable[j]
		aProg := a.f.Status == StatusInProgress
		bProg := b.f.Status == StatusInProgress
		if aProg != bProg {
			return aProg
		}
		if a.f.Priority != b.f.Priority {
			return a.f.Priority > b.f.Priority
		}
		return a.index < b.index
	})

	cp := *runnable[0].f
	return &cp
}

// mutate applies fn to the feature with the given ID and persists.
func (s *Store) mutate(id string, fn func(*Feature) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.features {
		if f.ID == id {
			if err := fn(f); err != nil {
				return err
			}
			return s.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SetStatus transitions a feature's status. Completed features cannot
// regress.
func (s *Store) SetStatus(id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	return s.mutate(id, func(f *Feature) error {
		if f.Status == StatusCompleted && status != StatusCompleted {
			return fmt.Errorf("feature %s is completed and cannot move to %s", id, status)
		}
		f.Status = status
		if status != StatusBlocked {
			f.BlockedReason = ""
		}
		return nil
	})
}

// ResetCompleted is the explicit operator escape hatch that moves a
// completed feature back to pending.
func (s *Store) ResetCompleted(id string) error {
	return s.mutate(id, func(f *Feature) error {
		if f.Status != StatusCompleted {
			return fmt.Errorf("feature %s is not completed", id)
		}
		f.Status = StatusPending
		return nil
	})
}

// AddSessionSpent increments the feature's session counter.
func (s *Store) AddSessionSpent(id string) error {
	return s.mutate(id, func(f *Feature) error {
		f.SessionsSpent++
		return nil
	})
}

// AppendNote adds an entry to the feature's implementation notes.
func (s *Store) AppendNote(id, note string) error {
	if note == "" {
		return nil
	}
	return s.mutate(id, func(f *Feature) error {
		f.ImplementationNotes = append(f.ImplementationNotes, note)
		return nil
	})
}

// MarkBlocked blocks a feature with a reason.
func (s *Store) MarkBlocked(id, reason string) error {
	return s.mutate(id, func(f *Feature) error {
		if f.Status == StatusCompleted {
			return fmt.Errorf("feature %s is completed and cannot be blocked", id)
		}
		f.Status = StatusBlocked
		f.BlockedReason = reason
		return nil
	})
}
