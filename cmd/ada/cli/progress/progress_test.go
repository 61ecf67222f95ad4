package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFixed(t *testing.T) *Log {
	t.Helper()
	l := Open(t.TempDir())
	l.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return l
}

func TestAppendAndFull(t *testing.T) {
	l := openFixed(t)
	require.NoError(t, l.SessionStarted("20260314_001_claude_auth", "auth", "Auth middleware", "claude-sonnet-4-5"))
	require.NoError(t, l.SessionEnded("20260314_001_claude_auth", "handoff", 17*time.Minute, 84211, 1.2345))

	full, err := l.Full()
	require.NoError(t, err)
	assert.Contains(t, full, "[2026-03-14 09:26:53] SESSION START 20260314_001_claude_auth")
	assert.Contains(t, full, "feature: auth (Auth middleware)")
	assert.Contains(t, full, "outcome: handoff")
	assert.Contains(t, full, "cost: $1.2345")
}

func TestFullMissingFile(t *testing.T) {
	l := Open(t.TempDir())
	full, err := l.Full()
	require.NoError(t, err)
	assert.Empty(t, full)
}

func TestTailPagination(t *testing.T) {
	l := openFixed(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Note("entry", "detail"))
	}
	// Each entry is two lines: header + detail.
	lines, total, err := l.Tail(3, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	require.Len(t, lines, 3)
	assert.Equal(t, "  detail", lines[2])

	// Offset walks backwards from the end.
	offsetLines, _, err := l.Tail(2, 2)
	require.NoError(t, err)
	require.Len(t, offsetLines, 2)
	assert.Contains(t, offsetLines[0], "entry")

	// Over-large offset yields nothing.
	none, _, err := l.Tail(5, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTailBytesCutsAtLineBoundary(t *testing.T) {
	l := openFixed(t)
	require.NoError(t, l.Note("first entry"))
	require.NoError(t, l.Note("second entry"))

	full, err := l.Full()
	require.NoError(t, err)

	tail, err := l.TailBytes(len(full) - 5)
	require.NoError(t, err)
	assert.NotContains(t, tail, "first entry")
	assert.Contains(t, tail, "second entry")
	// Starts on a full line, not mid-line.
	assert.Equal(t, byte('['), tail[0])
}

func TestHandoffMultilineNotes(t *testing.T) {
	l := openFixed(t)
	require.NoError(t, l.Handoff("s1", "auth", "done: token parsing\nnext: refresh flow"))
	full, err := l.Full()
	require.NoError(t, err)
	assert.Contains(t, full, "HANDOFF s1")
	assert.Contains(t, full, "  done: token parsing")
	assert.Contains(t, full, "  next: refresh flow")
}
