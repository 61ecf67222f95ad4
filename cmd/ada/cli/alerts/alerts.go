// Package alerts manages operator notifications persisted at
// .ada/alerts.json. The store keeps the 100 most recent alerts and
// suppresses duplicates raised in quick succession.
package alerts

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// Alert types.
const (
	TypeSessionFailed    = "SESSION_FAILED"
	TypeFeatureCompleted = "FEATURE_COMPLETED"
	TypeFeatureBlocked   = "FEATURE_BLOCKED"
	TypeHandoffOccurred  = "HANDOFF_OCCURRED"
)

// Severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// MaxAlerts caps the persisted alert list.
const MaxAlerts = 100

// DefaultDedupeWindow suppresses a repeat of the same type+title.
const DefaultDedupeWindow = 60 * time.Second

// ErrNotFound is returned for unknown alert IDs.
var ErrNotFound = errors.New("alert not found")

// Alert is one operator notification.
type Alert struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
	Read      bool              `json:"read"`
	Dismissed bool              `json:"dismissed"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store owns the persisted alert list. Newest alerts come first.
type Store struct {
	ws  *paths.Workspace
	bus Bus

	mu     sync.Mutex
	alerts []*Alert
	window time.Duration

	now func() time.Time
}

// Bus is the subset of the event bus the store publishes to.
type Bus interface {
	Publish(name string, data any)
}

// Open loads the alert store. A missing file yields an empty store. The bus
// may be nil (alerts are then persisted but not announced).
func Open(ws *paths.Workspace, bus Bus) (*Store, error) {
	s := &Store{ws: ws, bus: bus, window: DefaultDedupeWindow, now: time.Now}
	var alerts []*Alert
	if err := jsonutil.LoadJSON(ws.Path(paths.AlertsFile), &alerts); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading alerts: %w", err)
		}
	}
	s.alerts = alerts
	return s, nil
}

// SetDedupeWindow overrides the duplicate-suppression window. Zero or
// negative durations are ignored.
func (s *Store) SetDedupeWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.window = d
	s.mu.Unlock()
}

// save persists the list atomically. Caller holds s.mu.
func (s *Store) save() error {
	if err := s.ws.Ensure(); err != nil {
		return err
	}
	if err := jsonutil.SaveJSON(s.ws.Path(paths.AlertsFile), s.alerts); err != nil {
		return fmt.Errorf("saving alerts: %w", err)
	}
	return nil
}

// Raise creates an alert, deduplicating repeats of the same type and title
// inside the dedupe window. Returns the stored alert, or nil when the alert
// was suppressed.
func (s *Store) Raise(alertType, severity, title, message string, metadata map[string]string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	for _, a := range s.alerts {
		if a.Type == alertType && a.Title == title && a.CreatedAt.After(cutoff) {
			return nil, nil
		}
	}

	a := &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
		Metadata:  metadata,
	}
	s.alerts = append([]*Alert{a}, s.alerts...)
	if len(s.alerts) > MaxAlerts {
		s.alerts = s.alerts[:MaxAlerts]
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(events.AlertCreated, a)
	}
	return a, nil
}

// List returns alerts, newest first. Dismissed alerts are excluded unless
// includeDismissed is set.
func (s *Store) List(includeDismissed bool) []*Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.Dismissed && !includeDismissed {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// UnreadCount returns the number of unread, undismissed alerts.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if !a.Read && !a.Dismissed {
			n++
		}
	}
	return n
}

func (s *Store) mutate(id string, fn func(*Alert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			fn(a)
			return s.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// MarkRead marks one alert read.
func (s *Store) MarkRead(id string) error {
	return s.mutate(id, func(a *Alert) { a.Read = true })
}

// MarkAllRead marks every alert read.
func (s *Store) MarkAllRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		a.Read = true
	}
	return s.save()
}

// Dismiss hides an alert from the default listing.
func (s *Store) Dismiss(id string) error {
	return s.mutate(id, func(a *Alert) { a.Dismissed = true })
}
