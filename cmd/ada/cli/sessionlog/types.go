// Package sessionlog writes per-session JSONL event logs under
// .ada/logs/sessions, maintains the session index, and archives old logs
// into monthly tar files.
package sessionlog

import (
	"time"
)

// Event types, one per JSONL line.
const (
	TypeSessionStart  = "session_start"
	TypePrompt        = "prompt"
	TypeAssistant     = "assistant"
	TypeToolCall      = "tool_call"
	TypeToolResult    = "tool_result"
	TypeContextUpdate = "context_update"
	TypeError         = "error"
	TypeSessionEnd    = "session_end"
)

// MaxOutputBytes caps stored tool output; longer output is truncated with a
// marker.
const MaxOutputBytes = 50 * 1024

// TokenCounts mirrors the usage block reported by the transport.
type TokenCounts struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read"`
	CacheWrite int `json:"cache_write"`
}

// Total returns the sum of all counts.
func (t TokenCounts) Total() int {
	return t.Input + t.Output + t.CacheRead + t.CacheWrite
}

// Entry is one logged event. Unused fields are omitted per type.
type Entry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// session_start
	SessionID string `json:"session_id,omitempty"`
	FeatureID string `json:"feature_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Model     string `json:"model,omitempty"`

	// prompt / assistant
	Text string `json:"text,omitempty"`

	// tool_call / tool_result
	ToolName  string `json:"tool_name,omitempty"`
	ToolID    string `json:"tool_id,omitempty"`
	ToolInput string `json:"tool_input,omitempty"`
	Output    string `json:"output,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// context_update / session_end
	Tokens     *TokenCounts `json:"tokens,omitempty"`
	ContextPct float64      `json:"context_pct,omitempty"`

	// error / session_end
	Error   string `json:"error,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	DurationSec float64 `json:"duration_sec,omitempty"`
	Turns       int     `json:"turns,omitempty"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
}

// IndexEntry summarizes one session in .ada/logs/index.json.
type IndexEntry struct {
	SessionID string    `json:"session_id"`
	FeatureID string    `json:"feature_id"`
	Agent     string    `json:"agent"`
	Model     string    `json:"model"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Events    int       `json:"events"`
	Bytes     int64     `json:"bytes"`
	Archived  bool      `json:"archived"`
}
