// Package anthropicapi runs sessions directly against the Anthropic
// Messages streaming API. Unlike the CLI transport it has no tool
// execution environment; it is used for plan-and-review style sessions
// where the model works from the prompt alone.
package anthropicapi

import (
	"context"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
)

// Name is the transport identifier used in session IDs.
const Name = "api"

// Transport streams Messages API responses.
type Transport struct {
	client sdk.Client

	// MaxTokens bounds the response; defaults to 8192.
	MaxTokens int64
}

// New returns a Transport using ambient credentials (ANTHROPIC_API_KEY).
func New() *Transport {
	return &Transport{client: sdk.NewClient(), MaxTokens: 8192}
}

// Name implements agent.Transport.
func (t *Transport) Name() string { return Name }

// Start implements agent.Transport.
func (t *Transport) Start(ctx context.Context, req agent.Request) (agent.Session, error) {
	maxTokens := t.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	stream := t.client.Messages.NewStreaming(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	})

	s := &session{
		events: make(chan agent.Event, 64),
	}
	go s.run(stream)
	return s, nil
}

// eventStream is the part of the SDK stream the session consumes.
// Narrowed for tests.
type eventStream interface {
	Next() bool
	Current() sdk.MessageStreamEventUnion
	Err() error
	Close() error
}

type session struct {
	events chan agent.Event

	mu      sync.Mutex
	doneErr error
	done    bool
}

func (s *session) Events() <-chan agent.Event { return s.events }

func (s *session) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneErr
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		s.doneErr = err
	}
}

// toolBuffer accumulates a tool_use block's streamed input JSON.
type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) finalInput() string {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return "{}"
	}
	return joined
}

// run converts SDK stream events into transport events.
func (s *session) run(stream eventStream) {
	defer close(s.events)
	defer stream.Close() //nolint:errcheck

	textBlocks := map[int]*strings.Builder{}
	toolBlocks := map[int]*toolBuffer{}
	var final strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.MessageStartEvent:
			if u := usageDelta(ev.Message.Usage); u.Total() > 0 {
				s.events <- agent.Event{Kind: agent.KindUsage, Usage: u}
			}
		case sdk.ContentBlockStartEvent:
			idx := int(ev.Index)
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolBlocks[idx] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			idx := int(ev.Index)
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				b, ok := textBlocks[idx]
				if !ok {
					b = &strings.Builder{}
					textBlocks[idx] = b
				}
				b.WriteString(delta.Text)
			case sdk.InputJSONDelta:
				if tb := toolBlocks[idx]; tb != nil && delta.PartialJSON != "" {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			idx := int(ev.Index)
			if b, ok := textBlocks[idx]; ok {
				delete(textBlocks, idx)
				text := b.String()
				if text != "" {
					s.events <- agent.Event{Kind: agent.KindAssistant, Text: text}
					final.WriteString(text)
				}
			}
			if tb, ok := toolBlocks[idx]; ok {
				delete(toolBlocks, idx)
				s.events <- agent.Event{
					Kind:      agent.KindToolCall,
					ToolID:    tb.id,
					ToolName:  tb.name,
					ToolInput: tb.finalInput(),
				}
			}
		case sdk.MessageDeltaEvent:
			s.events <- agent.Event{Kind: agent.KindUsage, Usage: agent.Usage{
				OutputTokens: int(ev.Usage.OutputTokens),
			}}
		case sdk.MessageStopEvent:
			s.events <- agent.Event{Kind: agent.KindCompleted, Result: final.String()}
		}
	}

	if err := stream.Err(); err != nil {
		s.events <- agent.Event{Kind: agent.KindError, Err: err.Error()}
		s.setErr(err)
		return
	}
	s.setErr(nil)
}

// usageDelta converts SDK usage to the transport type.
func usageDelta(u sdk.Usage) agent.Usage {
	return agent.Usage{
		InputTokens:      int(u.InputTokens),
		OutputTokens:     int(u.OutputTokens),
		CacheReadTokens:  int(u.CacheReadInputTokens),
		CacheWriteTokens: int(u.CacheCreationInputTokens),
	}
}
