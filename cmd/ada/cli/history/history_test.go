package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	ws, err := paths.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	s, err := Open(ws)
	require.NoError(t, err)
	return s
}

func rec(session, feature, model, outcome string, start time.Time, cost float64) *Record {
	return &Record{
		SessionID:    session,
		FeatureID:    feature,
		FeatureName:  "Feature " + feature,
		Agent:        "claude",
		Model:        model,
		Outcome:      outcome,
		StartedAt:    start,
		EndedAt:      start.Add(10 * time.Minute),
		DurationSec:  600,
		InputTokens:  1000,
		OutputTokens: 500,
		CostUSD:      cost,
	}
}

func TestAppendRoundTrip(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Append(rec("s1", "f1", "claude-sonnet-4-5", "success", now, 0.5)))

	reopened, err := Open(s.ws)
	require.NoError(t, err)
	got, err := reopened.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.FeatureID)
	assert.True(t, got.StartedAt.Equal(now))

	_, err = reopened.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachCommitPersists(t *testing.T) {
	s := openStore(t)
	now := time.Now().UTC()
	r := rec("s1", "f1", "m", "success", now, 0.5)
	r.FilesChanged = []string{"api/auth.go", "api/auth_test.go"}
	require.NoError(t, s.Append(r))

	require.NoError(t, s.AttachCommit("s1", "abc123def456"))

	reopened, err := Open(s.ws)
	require.NoError(t, err)
	got, err := reopened.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "abc123def456", got.CommitHash)
	assert.Equal(t, []string{"api/auth.go", "api/auth_test.go"}, got.FilesChanged)

	assert.ErrorIs(t, s.AttachCommit("missing", "deadbeef"), ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	s := openStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		feature := "f1"
		outcome := "success"
		if i%2 == 1 {
			feature = "f2"
			outcome = "failure"
		}
		require.NoError(t, s.Append(rec(fmt.Sprintf("s%d", i), feature, "m", outcome, base.Add(time.Duration(i)*time.Minute), 0.1)))
	}

	all, total := s.List(Filter{}, 1, 10)
	assert.Equal(t, 5, total)
	require.Len(t, all, 5)
	// Newest first.
	assert.Equal(t, "s4", all[0].SessionID)

	f1, total := s.List(Filter{FeatureID: "f1"}, 1, 10)
	assert.Equal(t, 3, total)
	assert.Len(t, f1, 3)

	failures, total := s.List(Filter{Outcome: "failure"}, 1, 10)
	assert.Equal(t, 2, total)
	assert.Len(t, failures, 2)

	page2, total := s.List(Filter{}, 2, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page2, 2)
	assert.Equal(t, "s2", page2[0].SessionID)

	empty, _ := s.List(Filter{}, 9, 2)
	assert.Empty(t, empty)
}

func TestCostsAggregation(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	require.NoError(t, s.Append(rec("s1", "f1", "claude-sonnet-4-5", "success", now.Add(-2*time.Hour), 1.0)))
	require.NoError(t, s.Append(rec("s2", "f1", "claude-opus-4-1", "handoff", now.Add(-1*time.Hour), 2.5)))
	// Old session outside a 7-day window.
	require.NoError(t, s.Append(rec("s3", "f2", "claude-sonnet-4-5", "failure", now.AddDate(0, 0, -30), 4.0)))

	week := s.Costs(7)
	assert.Equal(t, 2, week.TotalSessions)
	assert.InDelta(t, 3.5, week.TotalCostUSD, 1e-9)
	assert.InDelta(t, 1.0, week.CostByModel["claude-sonnet-4-5"], 1e-9)
	assert.Equal(t, 1, week.SessionsByOutcome["handoff"])
	require.NotEmpty(t, week.Daily)

	all := s.Costs(0)
	assert.Equal(t, 3, all.TotalSessions)
	assert.InDelta(t, 7.5, all.TotalCostUSD, 1e-9)
}

func TestProjectPercentilesAndConfidence(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	// Five completed features costing 1..5 across one session each.
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("f%d", i)
		require.NoError(t, s.Append(rec("s"+id, id, "m", "success", now.Add(-time.Duration(i)*time.Hour), float64(i))))
	}
	completed := []string{"f1", "f2", "f3", "f4", "f5"}

	p := s.Project(completed, 10)
	assert.Equal(t, ConfidenceHigh, p.Confidence)
	assert.Equal(t, 5, p.CompletedSamples)
	assert.InDelta(t, 3.0, p.CostPerFeatureP50, 1e-9)
	assert.InDelta(t, 2.0, p.CostPerFeatureP25, 1e-9)
	assert.InDelta(t, 4.0, p.CostPerFeatureP75, 1e-9)
	assert.InDelta(t, 30.0, p.EstimateMidUSD, 1e-9)
	assert.Greater(t, p.BurnRateUSDPerDay, 0.0)

	// One sample only: low confidence.
	low := s.Project([]string{"f1"}, 3)
	assert.Equal(t, ConfidenceLow, low.Confidence)
	assert.InDelta(t, 1.0, low.CostPerFeatureP50, 1e-9)
}

func TestProjectMultiSessionFeatureSumsCosts(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	require.NoError(t, s.Append(rec("s1", "f1", "m", "handoff", now.Add(-2*time.Hour), 1.5)))
	require.NoError(t, s.Append(rec("s2", "f1", "m", "success", now.Add(-1*time.Hour), 0.5)))
	require.NoError(t, s.Append(rec("s3", "f2", "m", "success", now, 3.0)))

	p := s.Project([]string{"f1", "f2"}, 4)
	assert.Equal(t, 2, p.CompletedSamples)
	// Samples: f1=2.0, f2=3.0; median interpolates to 2.5.
	assert.InDelta(t, 2.5, p.CostPerFeatureP50, 1e-9)
	assert.Equal(t, ConfidenceMedium, p.Confidence)
}

func TestTimelineGroupsAndBounds(t *testing.T) {
	s := openStore(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	// Out-of-order appends for f1.
	require.NoError(t, s.Append(rec("s2", "f1", "m", "success", base.Add(2*time.Hour), 0.2)))
	require.NoError(t, s.Append(rec("s1", "f1", "m", "handoff", base, 0.3)))
	require.NoError(t, s.Append(rec("s3", "f2", "m", "failure", base.Add(time.Hour), 0.1)))

	tl := s.Timeline()
	require.Len(t, tl, 2)
	// f1 started earliest, so it comes first.
	assert.Equal(t, "f1", tl[0].FeatureID)
	require.Len(t, tl[0].Segments, 2)
	assert.Equal(t, "s1", tl[0].Segments[0].SessionID)
	assert.True(t, tl[0].EarliestStart.Equal(base))
	assert.True(t, tl[0].LatestEnd.Equal(base.Add(2*time.Hour+10*time.Minute)))
	assert.InDelta(t, 0.5, tl[0].TotalCostUSD, 1e-9)
}
