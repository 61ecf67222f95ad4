package api

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/adaharness/ada/cmd/ada/cli/events"
	"github.com/adaharness/ada/cmd/ada/cli/logging"
	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// fileWatcher publishes bus events when an operator edits the backlog or
// progress files outside the harness. The project root directory is
// watched rather than the files themselves because editors replace files
// on save.
type fileWatcher struct {
	w *fsnotify.Watcher
}

func newFileWatcher(ctx context.Context, opts Options) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(opts.ProjectRoot); err != nil {
		_ = w.Close()
		return nil, err
	}

	fw := &fileWatcher{w: w}
	go fw.run(ctx, opts)
	return fw, nil
}

func (fw *fileWatcher) Close() error { return fw.w.Close() }

func (fw *fileWatcher) run(ctx context.Context, opts Options) {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			switch filepath.Base(ev.Name) {
			case paths.BacklogFile:
				if err := opts.Backlog.Reload(); err != nil {
					logging.Warn(ctx, "ignoring invalid backlog edit", "error", err)
					continue
				}
				opts.Bus.Publish(events.BacklogUpdated, opts.Backlog.Counts())
			case paths.ProgressFile:
				lines, total, err := opts.Progress.Tail(10, 0)
				if err != nil {
					continue
				}
				opts.Bus.Publish(events.ProgressUpdate, map[string]any{
					"lines": lines,
					"total": total,
				})
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "file watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}
