// Package history persists one record per finished session at
// .ada/state/history.json and computes the aggregations served by the
// telemetry API: cost summaries, completion projections, and the
// per-feature timeline.
package history

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Record is one finished session.
type Record struct {
	SessionID   string `json:"session_id"`
	FeatureID   string `json:"feature_id"`
	FeatureName string `json:"feature_name,omitempty"`
	Agent       string `json:"agent"`
	Model       string `json:"model"`
	Outcome     string `json:"outcome"`

	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationSec float64   `json:"duration_sec"`

	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	Turns            int `json:"turns"`

	CostUSD float64 `json:"cost_usd"`

	// FilesChanged lists worktree paths the session touched, from a VCS
	// status diff before and after the run.
	FilesChanged []string `json:"files_changed,omitempty"`

	// CommitHash is the commit created for this session's work, when one
	// was made.
	CommitHash string `json:"commit_hash,omitempty"`

	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TotalTokens returns all token traffic for the session.
func (r *Record) TotalTokens() int {
	return r.InputTokens + r.OutputTokens + r.CacheReadTokens + r.CacheWriteTokens
}

// Store owns the history file.
type Store struct {
	ws *paths.Workspace

	mu      sync.RWMutex
	records []*Record
}

// Open loads history; a missing file yields an empty store.
func Open(ws *paths.Workspace) (*Store, error) {
	s := &Store{ws: ws}
	if err := jsonutil.LoadJSON(ws.Path(paths.HistoryFile), &s.records); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading session history: %w", err)
		}
	}
	return s, nil
}

// Append adds a record and persists.
func (s *Store) Append(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if err := s.ws.Ensure(); err != nil {
		return err
	}
	if err := jsonutil.SaveJSON(s.ws.Path(paths.HistoryFile), s.records); err != nil {
		return fmt.Errorf("saving session history: %w", err)
	}
	return nil
}

// AttachCommit records the commit hash created for a session's work after
// the record was appended.
func (s *Store) AttachCommit(sessionID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.SessionID == sessionID {
			r.CommitHash = hash
			if err := jsonutil.SaveJSON(s.ws.Path(paths.HistoryFile), s.records); err != nil {
				return fmt.Errorf("saving session history: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
}

// Get returns the record for a session ID.
func (s *Store) Get(sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.SessionID == sessionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
}

// Filter selects sessions for listing.
type Filter struct {
	FeatureID string
	Outcome   string
}

// List returns matching records, newest first, with pagination. It also
// returns the total match count.
func (s *Store) List(f Filter, page, pageSize int) ([]*Record, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Record
	for _, r := range s.records {
		if f.FeatureID != "" && r.FeatureID != f.FeatureID {
			continue
		}
		if f.Outcome != "" && r.Outcome != f.Outcome {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]*Record, end-start)
	for i, r := range matched[start:end] {
		cp := *r
		out[i] = &cp
	}
	return out, total
}

// Count returns the total number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// TotalCost returns the summed cost of all sessions.
func (s *Store) TotalCost() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, r := range s.records {
		total += r.CostUSD
	}
	return total
}

// DailyCost is one day's aggregate.
type DailyCost struct {
	Date     string  `json:"date"`
	CostUSD  float64 `json:"cost_usd"`
	Sessions int     `json:"sessions"`
	Tokens   int     `json:"tokens"`
}

// CostSummary aggregates sessions from the last `days` days (0 = all time).
type CostSummary struct {
	Days              int                `json:"days"`
	TotalCostUSD      float64            `json:"total_cost_usd"`
	TotalSessions     int                `json:"total_sessions"`
	TotalTokens       int                `json:"total_tokens"`
	CostByModel       map[string]float64 `json:"cost_by_model"`
	SessionsByModel   map[string]int     `json:"sessions_by_model"`
	SessionsByOutcome map[string]int     `json:"sessions_by_outcome"`
	Daily             []DailyCost        `json:"daily"`
}

// Costs computes the cost summary for the trailing window.
func (s *Store) Costs(days int) CostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if days > 0 {
		cutoff = time.Now().AddDate(0, 0, -days)
	}

	sum := CostSummary{
		Days:              days,
		CostByModel:       map[string]float64{},
		SessionsByModel:   map[string]int{},
		SessionsByOutcome: map[string]int{},
	}
	daily := map[string]*DailyCost{}

	for _, r := range s.records {
		if days > 0 && r.StartedAt.Before(cutoff) {
			continue
		}
		sum.TotalCostUSD += r.CostUSD
		sum.TotalSessions++
		sum.TotalTokens += r.TotalTokens()
		sum.CostByModel[r.Model] += r.CostUSD
		sum.SessionsByModel[r.Model]++
		sum.SessionsByOutcome[r.Outcome]++

		day := r.StartedAt.Format("2006-01-02")
		d, ok := daily[day]
		if !ok {
			d = &DailyCost{Date: day}
			daily[day] = d
		}
		d.CostUSD += r.CostUSD
		d.Sessions++
		d.Tokens += r.TotalTokens()
	}

	for _, d := range daily {
		sum.Daily = append(sum.Daily, *d)
	}
	sort.Slice(sum.Daily, func(i, j int) bool { return sum.Daily[i].Date < sum.Daily[j].Date })
	return sum
}
