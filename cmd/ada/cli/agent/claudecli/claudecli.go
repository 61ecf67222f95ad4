// Package claudecli runs sessions through the Claude Code CLI as a
// subprocess, reading its stream-json output line by line.
package claudecli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/adaharness/ada/cmd/ada/cli/agent"
)

// Name is the transport identifier used in session IDs.
const Name = "claude"

// maxLineBytes sizes the scanner buffer; tool results inside a single
// stream-json line can be large.
const maxLineBytes = 10 * 1024 * 1024

// Transport spawns the agent CLI.
type Transport struct {
	// Binary is the CLI executable, default "claude".
	Binary string

	// ExtraArgs are appended to the standard argument set.
	ExtraArgs []string
}

// New returns a Transport for the given binary.
func New(binary string) *Transport {
	if binary == "" {
		binary = "claude"
	}
	return &Transport{Binary: binary}
}

// Name implements agent.Transport.
func (t *Transport) Name() string { return Name }

// Start implements agent.Transport. The subprocess is killed when ctx is
// cancelled.
func (t *Transport) Start(ctx context.Context, req agent.Request) (agent.Session, error) {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	args = append(args, t.ExtraArgs...)

	cmd := exec.CommandContext(ctx, t.Binary, args...) //nolint:gosec // binary comes from config
	cmd.Dir = req.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", t.Binary, err)
	}

	s := &session{
		cmd:    cmd,
		events: make(chan agent.Event, 64),
		done:   ctx.Done(),
	}
	go s.run(stdout, stderr)
	return s, nil
}

type session struct {
	cmd    *exec.Cmd
	events chan agent.Event

	// done unblocks event sends once the caller has cancelled the session
	// and stopped reading.
	done <-chan struct{}

	waitOnce sync.Once
	waitErr  error
}

func (s *session) Events() <-chan agent.Event { return s.events }

// send delivers an event unless the session is cancelled; reports whether
// the event was delivered.
func (s *session) send(ev agent.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Wait returns the subprocess exit error after the event stream closes.
func (s *session) Wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// run parses stream-json lines into events, then closes the channel.
func (s *session) run(stdout, stderr io.Reader) {
	defer close(s.events)

	// Drain stderr so the subprocess cannot block on a full pipe; keep the
	// tail for error reporting.
	stderrTail := make(chan string, 1)
	go func() {
		var tail []byte
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				tail = append(tail, buf[:n]...)
				if len(tail) > 4096 {
					tail = tail[len(tail)-4096:]
				}
			}
			if err != nil {
				break
			}
		}
		stderrTail <- string(tail)
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	sawResult := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			// Skip malformed lines the way the transcript parser does;
			// the CLI occasionally interleaves non-JSON noise.
			continue
		}
		if s.handleFrame(&frame) {
			sawResult = true
		}
	}

	waitErr := s.Wait()
	if scanErr := scanner.Err(); scanErr != nil {
		s.send(agent.Event{Kind: agent.KindError, Err: fmt.Sprintf("reading agent output: %v", scanErr)})
		return
	}
	if waitErr != nil && !sawResult {
		msg := waitErr.Error()
		if tail := <-stderrTail; tail != "" {
			msg = fmt.Sprintf("%s: %s", msg, tail)
		}
		s.send(agent.Event{Kind: agent.KindError, Err: fmt.Sprintf("agent process exited: %s", msg)})
	}
}

// handleFrame emits events for one frame; reports whether it was the
// terminal result frame.
func (s *session) handleFrame(f *streamFrame) bool {
	switch f.Type {
	case "assistant":
		var msg assistantMessage
		if err := json.Unmarshal(f.Message, &msg); err != nil {
			return false
		}
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					s.send(agent.Event{Kind: agent.KindAssistant, Text: block.Text})
				}
			case "tool_use":
				s.send(agent.Event{
					Kind:      agent.KindToolCall,
					ToolID:    block.ID,
					ToolName:  block.Name,
					ToolInput: string(block.Input),
				})
			}
		}
		if msg.Usage != nil {
			s.send(agent.Event{Kind: agent.KindUsage, Usage: agent.Usage{
				InputTokens:      msg.Usage.InputTokens,
				OutputTokens:     msg.Usage.OutputTokens,
				CacheReadTokens:  msg.Usage.CacheReadInputTokens,
				CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			}})
		}
	case "user":
		var msg userMessage
		if err := json.Unmarshal(f.Message, &msg); err != nil {
			return false
		}
		for _, block := range msg.Content {
			if block.Type != "tool_result" {
				continue
			}
			s.send(agent.Event{
				Kind:    agent.KindToolResult,
				ToolID:  block.ToolUseID,
				Output:  block.ContentText(),
				IsError: block.IsError,
			})
		}
	case "result":
		if f.IsError || f.Subtype != "success" {
			s.send(agent.Event{Kind: agent.KindError, Err: fmt.Sprintf("agent reported %s: %s", f.Subtype, f.Result)})
			return true
		}
		s.send(agent.Event{Kind: agent.KindCompleted, Result: f.Result})
		return true
	}
	return false
}
