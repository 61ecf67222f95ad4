// Package api serves the read-only telemetry surface: JSON endpoints over
// chi, a WebSocket event push channel, and a file watcher that picks up
// operator edits to the backlog and progress files.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adaharness/ada/cmd/ada/cli/alerts"
	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/harness"
	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/progress"
	"github.com/adaharness/ada/cmd/ada/cli/sessionlog"
	"github.com/adaharness/ada/cmd/ada/cli/validation"
)

// Options wires the server to the harness stores.
type Options struct {
	Addr        string
	ProjectRoot string

	Backlog   *backlog.Store
	History   *history.Store
	Alerts    *alerts.Store
	Progress  *progress.Log
	Workspace *paths.Workspace
	Bus       *events.Bus

	// Status reports harness state; nil serves an idle status.
	Status func() harness.Status
}

// Server is the telemetry HTTP server.
type Server struct {
	opts   Options
	router chi.Router
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/backlog", s.handleBacklog)
		r.Get("/backlog/{id}", s.handleFeature)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/costs", s.handleCosts)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/progress", s.handleProgress)
		r.Get("/progress/full", s.handleProgressFull)
		r.Get("/projections", s.handleProjections)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/alerts/unread/count", s.handleUnreadCount)
		r.Post("/alerts/read-all", s.handleReadAll)
		r.Post("/alerts/{id}/read", s.handleMarkRead)
		r.Post("/alerts/{id}/dismiss", s.handleDismiss)
	})
	r.Get("/ws/events", s.handleWS)

	s.router = r
	return s
}

// Router exposes the handler, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until ctx is cancelled. The file watcher runs alongside.
func (s *Server) Run(ctx context.Context) error {
	watcher, err := newFileWatcher(ctx, s.opts)
	if err != nil {
		logging.Warn(ctx, "file watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "telemetry API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down telemetry API: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telemetry API: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn(context.Background(), "failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var st harness.Status
	if s.opts.Status != nil {
		st = s.opts.Status()
	} else {
		st = harness.Status{State: "idle"}
	}
	counts := s.opts.Backlog.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           st.State,
		"current_feature": st.CurrentFeature,
		"current_session": st.CurrentSession,
		"started_at":      st.StartedAt,
		"uptime_sec":      st.UptimeSec,
		"backlog":         counts,
		"completion_pct":  counts.CompletionPct(),
	})
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"project_name": s.opts.Backlog.ProjectName(),
		"project_path": s.opts.Backlog.ProjectPath(),
		"features":     s.opts.Backlog.List(),
		"counts":       s.opts.Backlog.Counts(),
	})
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := s.opts.Backlog.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("feature %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intQuery(r, "page", 1)
	pageSize := intQuery(r, "page_size", 20)
	recs, total := s.opts.History.List(history.Filter{
		FeatureID: q.Get("feature_id"),
		Outcome:   q.Get("outcome"),
	}, page, pageSize)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":  recs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.opts.History.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	resp := map[string]any{"session": rec}
	if evs, err := sessionlog.Events(s.opts.Workspace, id); err == nil {
		resp["events"] = evs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30)
	writeJSON(w, http.StatusOK, s.opts.History.Costs(days))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	lines := intQuery(r, "lines", 50)
	offset := intQuery(r, "offset", 0)
	tail, total, err := s.opts.Progress.Tail(lines, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":  tail,
		"total":  total,
		"offset": offset,
	})
}

func (s *Server) handleProgressFull(w http.ResponseWriter, r *http.Request) {
	full, err := s.opts.Progress.Full()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(full))
}

func (s *Server) handleProjections(w http.ResponseWriter, r *http.Request) {
	var completed []string
	remaining := 0
	for _, f := range s.opts.Backlog.List() {
		switch f.Status {
		case backlog.StatusCompleted:
			completed = append(completed, f.ID)
		case backlog.StatusPending, backlog.StatusInProgress:
			remaining++
		}
	}
	writeJSON(w, http.StatusOK, s.opts.History.Project(completed, remaining))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"features": s.opts.History.Timeline(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	includeDismissed := r.URL.Query().Get("include_dismissed") == "true"
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": s.opts.Alerts.List(includeDismissed),
		"unread": s.opts.Alerts.UnreadCount(),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.opts.Alerts.UnreadCount()})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, chi.URLParam(r, "id"), s.opts.Alerts.MarkRead)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, chi.URLParam(r, "id"), s.opts.Alerts.Dismiss)
}

func (s *Server) alertAction(w http.ResponseWriter, id string, fn func(string) error) {
	if err := validation.ValidateAlertID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := fn(id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("alert %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Alerts.MarkAllRead(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
