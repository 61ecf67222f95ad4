package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

func openStore(t *testing.T, bus Bus) *Store {
	t.Helper()
	ws, err := paths.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	s, err := Open(ws, bus)
	require.NoError(t, err)
	return s
}

func TestRaisePersistsAndPublishes(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	s := openStore(t, bus)
	a, err := s.Raise(TypeFeatureCompleted, SeveritySuccess, "Feature auth completed", "all gates passed", map[string]string{"feature_id": "auth"})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NotEmpty(t, a.ID)

	ev := <-sub.Events()
	assert.Equal(t, events.AlertCreated, ev.Name)

	reopened, err := Open(s.ws, nil)
	require.NoError(t, err)
	list := reopened.List(false)
	require.Len(t, list, 1)
	assert.Equal(t, TypeFeatureCompleted, list[0].Type)
	assert.Equal(t, "auth", list[0].Metadata["feature_id"])
}

func TestDuplicateSuppressionWindow(t *testing.T) {
	s := openStore(t, nil)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	first, err := s.Raise(TypeSessionFailed, SeverityError, "Session failed for auth", "m1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same type+title inside the 60s window is suppressed.
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	dup, err := s.Raise(TypeSessionFailed, SeverityError, "Session failed for auth", "m2", nil)
	require.NoError(t, err)
	assert.Nil(t, dup)

	// Outside the window it goes through again.
	s.now = func() time.Time { return base.Add(90 * time.Second) }
	again, err := s.Raise(TypeSessionFailed, SeverityError, "Session failed for auth", "m3", nil)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestDedupeWindowConfigurable(t *testing.T) {
	s := openStore(t, nil)
	s.SetDedupeWindow(5 * time.Minute)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	first, err := s.Raise(TypeSessionFailed, SeverityError, "Session failed for auth", "m1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 90s would clear the default window but not the configured one.
	s.now = func() time.Time { return base.Add(90 * time.Second) }
	dup, err := s.Raise(TypeSessionFailed, SeverityError, "Session failed for auth", "m2", nil)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestCapKeepsNewest(t *testing.T) {
	s := openStore(t, nil)
	for i := 0; i < MaxAlerts+10; i++ {
		_, err := s.Raise(TypeHandoffOccurred, SeverityInfo, fmt.Sprintf("handoff %d", i), "", nil)
		require.NoError(t, err)
	}
	list := s.List(false)
	require.Len(t, list, MaxAlerts)
	assert.Equal(t, fmt.Sprintf("handoff %d", MaxAlerts+9), list[0].Title)
}

func TestReadAndDismissFlow(t *testing.T) {
	s := openStore(t, nil)
	a1, err := s.Raise(TypeFeatureBlocked, SeverityError, "blocked one", "", nil)
	require.NoError(t, err)
	a2, err := s.Raise(TypeFeatureBlocked, SeverityError, "blocked two", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, s.UnreadCount())
	require.NoError(t, s.MarkRead(a1.ID))
	assert.Equal(t, 1, s.UnreadCount())

	require.NoError(t, s.Dismiss(a2.ID))
	assert.Equal(t, 0, s.UnreadCount())
	assert.Len(t, s.List(false), 1)
	assert.Len(t, s.List(true), 2)

	require.NoError(t, s.MarkAllRead())
	assert.Equal(t, 0, s.UnreadCount())

	assert.ErrorIs(t, s.MarkRead("nope"), ErrNotFound)
}
