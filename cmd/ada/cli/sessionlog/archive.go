package sessionlog

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adaharness/ada/cmd/ada/cli/paths"
)

// Rotation thresholds: when the sessions directory grows past RotateBytes,
// everything but the newest KeepSessions logs moves into the monthly tar.
const (
	RotateBytes  = 100 * 1024 * 1024
	KeepSessions = 50
)

// tarTrailerSize is the two zero blocks that terminate a tar stream.
// Appending means seeking back over them.
const tarTrailerSize = 1024

// Rotate archives old session logs if the sessions directory exceeds the
// size threshold. Returns the IDs of archived sessions.
func Rotate(ws *paths.Workspace) ([]string, error) {
	return rotate(ws, RotateBytes, KeepSessions)
}

func rotate(ws *paths.Workspace, maxBytes int64, keep int) ([]string, error) {
	dir := ws.Path(paths.SessionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}

	type logFile struct {
		name    string
		size    int64
		modTime time.Time
	}
	var files []logFile
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{name: e.Name(), size: fi.Size(), modTime: fi.ModTime()})
		total += fi.Size()
	}
	if total <= maxBytes || len(files) <= keep {
		return nil, nil
	}

	// Oldest first; everything before the newest `keep` is archived.
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	victims := files[:len(files)-keep]

	var archived []string
	for _, v := range victims {
		src := filepath.Join(dir, v.name)
		if err := appendToTar(ws.ArchivePath(v.modTime), src, v.name); err != nil {
			return archived, err
		}
		if err := os.Remove(src); err != nil {
			return archived, fmt.Errorf("removing archived log: %w", err)
		}
		archived = append(archived, strings.TrimSuffix(v.name, ".jsonl"))
	}
	if len(archived) > 0 {
		if err := markArchived(ws, archived); err != nil {
			return archived, err
		}
	}
	return archived, nil
}

// appendToTar adds src to the tar at tarPath, creating it if needed. An
// existing archive is extended by overwriting its trailer blocks.
func appendToTar(tarPath, src, name string) error {
	f, err := os.OpenFile(tarPath, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path is workspace-derived
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if fi, err := f.Stat(); err != nil {
		return fmt.Errorf("stat archive: %w", err)
	} else if fi.Size() >= tarTrailerSize {
		if _, err := f.Seek(-tarTrailerSize, io.SeekEnd); err != nil {
			return fmt.Errorf("seeking archive trailer: %w", err)
		}
	}

	tw := tar.NewWriter(f)
	srcFile, err := os.Open(src) //nolint:gosec // path is workspace-derived
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer srcFile.Close() //nolint:errcheck

	fi, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat session log: %w", err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing archive header: %w", err)
	}
	if _, err := io.Copy(tw, srcFile); err != nil {
		return fmt.Errorf("archiving session log: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}
