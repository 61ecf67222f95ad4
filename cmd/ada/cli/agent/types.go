// Package agent defines the transport abstraction between the session
// runtime and a concrete coding agent: a subprocess CLI or the streaming
// API. Transports translate their native stream into a common event
// sequence; the runtime owns timers, accounting, and outcome decisions.
package agent

import (
	"context"
)

// EventKind discriminates transport events.
type EventKind string

const (
	KindAssistant  EventKind = "assistant"   // assistant text
	KindToolCall   EventKind = "tool_call"   // agent invoked a tool
	KindToolResult EventKind = "tool_result" // tool output returned to the agent
	KindUsage      EventKind = "usage"       // token usage delta
	KindCompleted  EventKind = "completed"   // agent signalled it is done
	KindError      EventKind = "error"       // transport-level error
)

// Usage is a token usage delta reported by the transport.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Add accumulates another delta.
func (u *Usage) Add(d Usage) {
	u.InputTokens += d.InputTokens
	u.OutputTokens += d.OutputTokens
	u.CacheReadTokens += d.CacheReadTokens
	u.CacheWriteTokens += d.CacheWriteTokens
}

// Total returns all token traffic.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Event is one transport event. Fields are populated per kind.
type Event struct {
	Kind EventKind

	// KindAssistant
	Text string

	// KindToolCall / KindToolResult
	ToolID    string
	ToolName  string
	ToolInput string
	Output    string
	IsError   bool

	// KindUsage
	Usage Usage

	// KindCompleted: the agent's final result text.
	Result string

	// KindError
	Err string
}

// Request describes one session to run.
type Request struct {
	Prompt  string
	Model   string
	WorkDir string
}

// Session is a running agent session. Events closes when the session ends;
// Wait then reports how the underlying transport finished.
type Session interface {
	// Events returns the event stream. The channel is closed when the
	// transport finishes or dies.
	Events() <-chan Event

	// Wait blocks until the transport has fully stopped and returns its
	// terminal error, if any. Cancelling the Start context stops the
	// session.
	Wait() error
}

// Transport starts agent sessions.
type Transport interface {
	// Name identifies the transport in session IDs and logs.
	Name() string

	// Start launches a session. The session stops when ctx is cancelled.
	Start(ctx context.Context, req Request) (Session, error)
}
