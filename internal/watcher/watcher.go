// Package watcher polls an import source and reacts when its files change.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileStamp struct {
	modTime time.Time
	size    int64
}

// ChangeFunc is called with the watched path after a change was detected.
type ChangeFunc func(ctx context.Context, path string) error

// Watcher polls a bundle directory or an exported members database.
type Watcher struct {
	path     string
	onChange ChangeFunc
	tick     time.Duration

	stamps   map[string]fileStamp
	interval time.Duration
	nextPoll time.Time
}

// New creates a Watcher for path. onChange runs when the source differs
// from the last successfully handled state.
func New(path string, onChange ChangeFunc) *Watcher {
	return &Watcher{path: path, onChange: onChange, tick: baseInterval}
}

// Run blocks until ctx is cancelled. The first poll only records a baseline.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().Before(w.nextPoll) {
				continue
			}
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	stamps, err := capture(w.path)
	if err != nil {
		slog.Warn("watcher.source_gone", "path", w.path, "err", err)
		w.nextPoll = time.Now().Add(maxInterval)
		return
	}
	interval := pollInterval(len(stamps))

	if w.stamps == nil {
		slog.Debug("watcher.baseline", "path", w.path, "files", len(stamps))
		w.stamps = stamps
		w.interval = interval
		w.nextPoll = time.Now().Add(interval)
		return
	}
	if stampsEqual(w.stamps, stamps) {
		w.interval = interval
		w.nextPoll = time.Now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "path", w.path, "files", len(stamps))
	if err := w.onChange(ctx, w.path); err != nil {
		// keep the old stamps so the next poll retries
		slog.Warn("watcher.handle", "path", w.path, "err", err)
		w.nextPoll = time.Now().Add(interval)
		return
	}
	w.stamps = stamps
	w.interval = interval
	w.nextPoll = time.Now().Add(interval)
}

// capture records mtime and size of path, or of every regular file below it.
func capture(path string) (map[string]fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return map[string]fileStamp{".": {modTime: info.ModTime(), size: info.Size()}}, nil
	}

	stamps := make(map[string]fileStamp)
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		rel, _ := filepath.Rel(path, p)
		stamps[rel] = fileStamp{modTime: fi.ModTime(), size: fi.Size()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stamps, nil
}

func stampsEqual(a, b map[string]fileStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for p, as := range a {
		bs, ok := b[p]
		if !ok || !as.modTime.Equal(bs.modTime) || as.size != bs.size {
			return false
		}
	}
	return true
}

// pollInterval is 1s plus 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
