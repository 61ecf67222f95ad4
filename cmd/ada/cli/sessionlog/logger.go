package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/validation"
	"github.com/adaharness/ada/redact"
)

// Logger writes one session's JSONL log. Every entry is flushed to disk as
// it is written so a crashed harness loses at most the line in flight.
type Logger struct {
	ws        *paths.Workspace
	sessionID string
	path      string

	mu     sync.Mutex
	f      *os.File
	events int
	start  time.Time
	closed bool
}

// New opens a log file for a session and writes the session_start entry.
func New(ws *paths.Workspace, sessionID, featureID, agent, model string) (*Logger, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("invalid session ID for logging: %w", err)
	}
	if err := ws.Ensure(); err != nil {
		return nil, err
	}

	path := ws.SessionLogPath(sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // sessionID validated above
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	l := &Logger{
		ws:        ws,
		sessionID: sessionID,
		path:      path,
		f:         f,
		start:     time.Now().UTC(),
	}
	err = l.append(&Entry{
		Type:      TypeSessionStart,
		SessionID: sessionID,
		FeatureID: featureID,
		Agent:     agent,
		Model:     model,
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := appendIndexEntry(ws, IndexEntry{
		SessionID: sessionID,
		FeatureID: featureID,
		Agent:     agent,
		Model:     model,
		StartedAt: l.start,
	}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// SessionID returns the session this logger writes for.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// append marshals, writes, and syncs one line.
func (l *Logger) append(e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("session log %s already closed", l.sessionID)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding log entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("writing log entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing session log: %w", err)
	}
	l.events++
	return nil
}

// truncate caps text at MaxOutputBytes and reports whether it was cut.
func truncate(text string) (string, bool) {
	if len(text) <= MaxOutputBytes {
		return text, false
	}
	return text[:MaxOutputBytes] + "\n... [output truncated]", true
}

// Prompt logs the prompt sent to the agent.
func (l *Logger) Prompt(text string) error {
	return l.append(&Entry{Type: TypePrompt, Text: redact.String(text)})
}

// Assistant logs an assistant message.
func (l *Logger) Assistant(text string) error {
	return l.append(&Entry{Type: TypeAssistant, Text: redact.String(text)})
}

// ToolCall logs a tool invocation.
func (l *Logger) ToolCall(toolID, name, input string) error {
	in, truncated := truncate(redact.String(input))
	return l.append(&Entry{
		Type:      TypeToolCall,
		ToolID:    toolID,
		ToolName:  name,
		ToolInput: in,
		Truncated: truncated,
	})
}

// ToolResult logs a tool result, redacted and truncated.
func (l *Logger) ToolResult(toolID, output string, isError bool) error {
	out, truncated := truncate(redact.String(output))
	return l.append(&Entry{
		Type:      TypeToolResult,
		ToolID:    toolID,
		Output:    out,
		Truncated: truncated,
		IsError:   isError,
	})
}

// ContextUpdate logs cumulative usage and the context estimate.
func (l *Logger) ContextUpdate(tokens TokenCounts, contextPct float64) error {
	return l.append(&Entry{Type: TypeContextUpdate, Tokens: &tokens, ContextPct: contextPct})
}

// Error logs a session error.
func (l *Logger) Error(msg string) error {
	return l.append(&Entry{Type: TypeError, Error: redact.String(msg)})
}

// Close writes the session_end entry and finalizes the index record.
// Safe to call once; subsequent appends fail.
func (l *Logger) Close(outcome string, tokens TokenCounts, turns int, costUSD float64, errMsg string) error {
	end := &Entry{
		Type:        TypeSessionEnd,
		Outcome:     outcome,
		Tokens:      &tokens,
		Turns:       turns,
		CostUSD:     costUSD,
		DurationSec: time.Since(l.start).Seconds(),
	}
	if errMsg != "" {
		end.Error = redact.String(errMsg)
	}
	if err := l.append(end); err != nil {
		return err
	}

	l.mu.Lock()
	l.closed = true
	closeErr := l.f.Close()
	events := l.events
	l.mu.Unlock()
	if closeErr != nil {
		return fmt.Errorf("closing session log: %w", closeErr)
	}

	var size int64
	if fi, err := os.Stat(l.path); err == nil {
		size = fi.Size()
	}
	return finalizeIndexEntry(l.ws, l.sessionID, outcome, events, size)
}
