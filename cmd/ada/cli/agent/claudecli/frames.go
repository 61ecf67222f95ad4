package claudecli

import (
	"encoding/json"
	"strings"
)

// streamFrame is one line of stream-json output.
type streamFrame struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`

	// result frame fields
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// assistantMessage is the payload of an "assistant" frame.
type assistantMessage struct {
	Content []contentBlock `json:"content"`
	Usage   *usageBlock    `json:"usage,omitempty"`
}

// userMessage is the payload of a "user" frame carrying tool results.
type userMessage struct {
	Content []contentBlock `json:"content"`
}

// contentBlock covers text, tool_use, and tool_result blocks.
type contentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ContentText flattens a tool_result content field, which is either a
// plain string or a list of typed blocks.
func (b *contentBlock) ContentText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(b.Content, &asString); err == nil {
		return asString
	}
	var asBlocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &asBlocks); err == nil {
		var parts []string
		for _, blk := range asBlocks {
			if blk.Type == "text" && blk.Text != "" {
				parts = append(parts, blk.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(b.Content)
}

// usageBlock mirrors the per-call usage object on assistant frames.
type usageBlock struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}
