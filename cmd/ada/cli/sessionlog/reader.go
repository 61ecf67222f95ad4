package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
	"github.com/adaharness/ada/cmd/ada/cli/validation"
)

// maxLineBytes bounds a single JSONL line when reading logs back. Tool
// results are truncated at write time, so this is generous.
const maxLineBytes = 1024 * 1024

// Events loads all entries of one session's log. Malformed lines are
// skipped rather than failing the whole read.
func Events(ws *paths.Workspace, sessionID string) ([]Entry, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	f, err := os.Open(ws.SessionLogPath(sessionID)) //nolint:gosec // sessionID validated above
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning session log: %w", err)
	}
	return entries, nil
}

// ListFilter selects index entries.
type ListFilter struct {
	FeatureID string
	Outcome   string
}

// List returns index entries matching the filter, newest first, with the
// total match count for pagination.
func List(ws *paths.Workspace, f ListFilter, page, pageSize int) ([]IndexEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	idx, err := Index(ws)
	if err != nil {
		return nil, 0, err
	}

	var matched []IndexEntry
	for i := len(idx) - 1; i >= 0; i-- {
		e := idx[i]
		if f.FeatureID != "" && e.FeatureID != f.FeatureID {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
