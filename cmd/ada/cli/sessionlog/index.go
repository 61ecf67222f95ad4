package sessionlog

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/jsonutil"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// indexMu serializes index.json read-modify-write cycles across loggers.
var indexMu sync.Mutex

// loadIndex reads index.json; missing file yields an empty list.
func loadIndex(ws *paths.Workspace) ([]IndexEntry, error) {
	var idx []IndexEntry
	if err := jsonutil.LoadJSON(ws.Path(paths.LogIndexFile), &idx); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session index: %w", err)
	}
	return idx, nil
}

func saveIndex(ws *paths.Workspace, idx []IndexEntry) error {
	if err := jsonutil.SaveJSON(ws.Path(paths.LogIndexFile), idx); err != nil {
		return fmt.Errorf("saving session index: %w", err)
	}
	return nil
}

// appendIndexEntry registers a new session in the index.
func appendIndexEntry(ws *paths.Workspace, e IndexEntry) error {
	indexMu.Lock()
	defer indexMu.Unlock()
	idx, err := loadIndex(ws)
	if err != nil {
		return err
	}
	idx = append(idx, e)
	return saveIndex(ws, idx)
}

// finalizeIndexEntry records outcome, size, and end time on close.
func finalizeIndexEntry(ws *paths.Workspace, sessionID, outcome string, events int, size int64) error {
	indexMu.Lock()
	defer indexMu.Unlock()
	idx, err := loadIndex(ws)
	if err != nil {
		return err
	}
	for i := range idx {
		if idx[i].SessionID == sessionID {
			idx[i].Outcome = outcome
			idx[i].Events = events
			idx[i].Bytes = size
			idx[i].EndedAt = time.Now().UTC()
			return saveIndex(ws, idx)
		}
	}
	return fmt.Errorf("session %s missing from index", sessionID)
}

// markArchived flags index entries whose logs moved into an archive.
func markArchived(ws *paths.Workspace, sessionIDs []string) error {
	indexMu.Lock()
	defer indexMu.Unlock()
	idx, err := loadIndex(ws)
	if err != nil {
		return err
	}
	archived := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		archived[id] = true
	}
	for i := range idx {
		if archived[idx[i].SessionID] {
			idx[i].Archived = true
		}
	}
	return saveIndex(ws, idx)
}

// Index returns all index entries.
func Index(ws *paths.Workspace) ([]IndexEntry, error) {
	indexMu.Lock()
	defer indexMu.Unlock()
	return loadIndex(ws)
}
