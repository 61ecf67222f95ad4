package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaharness/ada/cmd/ada/cli/alerts"
	"github.com/adaharness/ada/cmd/ada/cli/backlog"
	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/harness"
	"github.com/adaharness/ada/cmd/ada/cli/history"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/progress"
)

type fixture struct {
	srv  *Server
	bus  *events.Bus
	bl   *backlog.Store
	hist *history.Store
	al   *alerts.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	ws, err := paths.NewWorkspace(dir)
	require.NoError(t, err)
	require.NoError(t, ws.Ensure())

	bl, err := backlog.Open(dir)
	require.NoError(t, err)
	require.NoError(t, bl.Add(&backlog.Feature{
		ID: "feat-1", Name: "Login", Category: backlog.CategoryFunctional,
		Priority: 5, Status: backlog.StatusCompleted,
	}))
	require.NoError(t, bl.Add(&backlog.Feature{
		ID: "feat-2", Name: "Search", Category: backlog.CategoryFunctional,
		Priority: 3, Status: backlog.StatusPending,
	}))

	hist, err := history.Open(ws)
	require.NoError(t, err)
	require.NoError(t, hist.Append(&history.Record{
		SessionID: "20260101_001_claude_feat-1", FeatureID: "feat-1",
		Agent: "claude", Model: "claude-sonnet-4", Outcome: "success",
		StartedAt: time.Now().Add(-time.Hour), EndedAt: time.Now(),
		InputTokens: 1000, OutputTokens: 200, CostUSD: 0.42,
	}))

	bus := events.NewBus()
	al, err := alerts.Open(ws, bus)
	require.NoError(t, err)

	prog := progress.Open(dir)
	require.NoError(t, prog.Note("TEST ENTRY", "line one"))

	srv := NewServer(Options{
		Addr:        "127.0.0.1:0",
		ProjectRoot: dir,
		Backlog:     bl,
		History:     hist,
		Alerts:      al,
		Progress:    prog,
		Workspace:   ws,
		Bus:         bus,
		Status: func() harness.Status {
			return harness.Status{State: "running", CurrentFeature: "feat-2"}
		},
	})
	return &fixture{srv: srv, bus: bus, bl: bl, hist: hist, al: al}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	res := rec.Result()
	var body map[string]any
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	}
	return res, body
}

func (f *fixture) post(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	res := rec.Result()
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	return res, body
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	res, body := f.get(t, "/api/status")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, "feat-2", body["current_feature"])
	assert.InDelta(t, 50.0, body["completion_pct"], 0.01)
}

func TestBacklogEndpoints(t *testing.T) {
	f := newFixture(t)

	res, body := f.get(t, "/api/backlog")
	require.Equal(t, http.StatusOK, res.StatusCode)
	features := body["features"].([]any)
	assert.Len(t, features, 2)

	res, body = f.get(t, "/api/backlog/feat-1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Login", body["name"])

	res, _ = f.get(t, "/api/backlog/nope")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSessionsEndpoints(t *testing.T) {
	f := newFixture(t)

	res, body := f.get(t, "/api/sessions?feature_id=feat-1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	res, body = f.get(t, "/api/sessions/20260101_001_claude_feat-1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	session := body["session"].(map[string]any)
	assert.Equal(t, "success", session["outcome"])

	res, _ = f.get(t, "/api/sessions/20990101_001_claude_nope")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = f.get(t, "/api/sessions/../../etc/passwd")
	assert.NotEqual(t, http.StatusOK, res.StatusCode)

	res, body = f.get(t, "/api/sessions/costs?days=7")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.InDelta(t, 0.42, body["total_cost_usd"], 0.001)
}

func TestProgressEndpoints(t *testing.T) {
	f := newFixture(t)

	res, body := f.get(t, "/api/progress?lines=10")
	require.Equal(t, http.StatusOK, res.StatusCode)
	lines := body["lines"].([]any)
	assert.NotEmpty(t, lines)

	req := httptest.NewRequest(http.MethodGet, "/api/progress/full", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TEST ENTRY")
}

func TestProjectionsAndTimeline(t *testing.T) {
	f := newFixture(t)

	res, body := f.get(t, "/api/projections")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "confidence")

	res, body = f.get(t, "/api/timeline")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "features")
}

func TestAlertEndpoints(t *testing.T) {
	f := newFixture(t)
	a, err := f.al.Raise(alerts.TypeFeatureBlocked, alerts.SeverityWarning, "Blocked", "details", nil)
	require.NoError(t, err)
	require.NotNil(t, a)

	res, body := f.get(t, "/api/alerts")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, body["unread"])

	res, _ = f.post(t, "/api/alerts/"+a.ID+"/read")
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, body = f.get(t, "/api/alerts/unread/count")
	assert.EqualValues(t, 0, body["count"])

	res, _ = f.post(t, "/api/alerts/"+a.ID+"/dismiss")
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, body = f.get(t, "/api/alerts")
	assert.Empty(t, body["alerts"])

	res, _ = f.post(t, "/api/alerts/00000000-0000-0000-0000-000000000000/read")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestWebSocketReceivesBusEvents(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "") //nolint:errcheck

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool {
		return f.bus.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.bus.Publish(events.FeatureUpdated, map[string]string{"id": "feat-2"})

	var envelope struct {
		Event     string         `json:"event"`
		Data      map[string]any `json:"data"`
		Timestamp time.Time      `json:"timestamp"`
	}
	require.NoError(t, wsjson.Read(ctx, c, &envelope))
	assert.Equal(t, events.FeatureUpdated, envelope.Event)
	assert.Equal(t, "feat-2", envelope.Data["id"])
	assert.False(t, envelope.Timestamp.IsZero())
}
