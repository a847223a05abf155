package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
)

var _ output.DownloadPort = (*Watcher)(nil)

// Watcher detects the flow's artifact on the filesystem. Browsers give
// no reliable UI signal for a finished download; a new file appearing
// in the download directory is the only trustworthy one. Files that
// already exist at watch start never count, even when they match.
type Watcher struct {
	logger output.LoggerPort
	poll   time.Duration

	dir      string
	existing map[string]struct{}
	fw       *fsnotify.Watcher
	events   chan string
	done     chan struct{}
}

// partialSuffixes are in-progress download names the watcher skips
// until the browser renames them to their final name.
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

func NewWatcher(logger output.LoggerPort) *Watcher {
	return &Watcher{
		logger: logger,
		poll:   200 * time.Millisecond,
		events: make(chan string, 16),
		done:   make(chan struct{}),
	}
}

// StartWatching snapshots the directory and subscribes to filesystem
// events. A polling fallback covers filesystems where events are
// unreliable.
func (w *Watcher) StartWatching(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("snapshot watch dir: %w", err)
	}
	existing := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		existing[e.Name()] = struct{}{}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.dir = dir
	w.existing = existing
	w.fw = fw

	go w.forward()

	w.logger.Info("watching for downloads", "dir", dir, "preexisting", len(existing))
	return nil
}

func (w *Watcher) forward() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.events <- ev.Name:
			default:
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watch error", "error", err)
		}
	}
}

// WaitForDownload blocks until a new file matching pattern appears or
// the timeout elapses. This is the flow's only join point with the
// watcher.
func (w *Watcher) WaitForDownload(ctx context.Context, pattern string, timeout time.Duration) (*entity.DownloadRecord, error) {
	if w.dir == "" {
		return nil, fmt.Errorf("watcher not started")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("no file matching %q appeared in %s within %s", pattern, w.dir, timeout)
		case name := <-w.events:
			if rec := w.candidate(filepath.Base(name), pattern); rec != nil {
				return rec, nil
			}
		case <-ticker.C:
			entries, err := os.ReadDir(w.dir)
			if err != nil {
				w.logger.Warn("watch dir scan failed", "error", err)
				continue
			}
			for _, e := range entries {
				if rec := w.candidate(e.Name(), pattern); rec != nil {
					return rec, nil
				}
			}
		}
	}
}

func (w *Watcher) candidate(name, pattern string) *entity.DownloadRecord {
	if _, preexisting := w.existing[name]; preexisting {
		return nil
	}
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return nil
		}
	}
	if ok, err := filepath.Match(pattern, name); err != nil || !ok {
		return nil
	}

	path := filepath.Join(w.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return nil
	}

	w.logger.Info("download discovered", "path", path, "size", info.Size())
	return &entity.DownloadRecord{
		Dir:          w.dir,
		Pattern:      pattern,
		Path:         path,
		DiscoveredAt: time.Now(),
	}
}

// MoveAndVerify validates the artifact, then relocates it atomically.
// Validation failures leave the source untouched so a human can
// inspect it; a partially written file is never accepted because the
// destination is re-validated after the rename.
func (w *Watcher) MoveAndVerify(src, dest string, requiredKeys []string) error {
	if err := verifyKeys(src, requiredKeys); err != nil {
		return fmt.Errorf("source %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	if err := os.Rename(src, dest); err != nil {
		// Rename fails across filesystems; fall back to copy into a
		// temp file next to the destination, then rename that.
		if copyErr := copyThenRename(src, dest); copyErr != nil {
			return fmt.Errorf("relocate artifact: %w", copyErr)
		}
		if rmErr := os.Remove(src); rmErr != nil {
			w.logger.Warn("could not remove moved source", "path", src, "error", rmErr)
		}
	}

	if err := verifyKeys(dest, requiredKeys); err != nil {
		return fmt.Errorf("destination %s: %w", dest, err)
	}

	w.logger.Info("artifact verified", "path", dest, "required_keys", len(requiredKeys))
	return nil
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	if w.fw != nil {
		return w.fw.Close()
	}
	return nil
}

// verifyKeys parses the file as JSON and checks every required key.
// Keys use dotted paths for nested objects, e.g. "installed.client_id".
func verifyKeys(path string, requiredKeys []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("artifact is not valid JSON: %w", err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if !hasKey(doc, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("artifact missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

func hasKey(doc map[string]any, dotted string) bool {
	parts := strings.Split(dotted, ".")
	current := any(doc)
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = obj[part]
		if !ok {
			return false
		}
	}
	return true
}

func copyThenRename(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".artifact-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, dest)
}
