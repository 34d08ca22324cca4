package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileDebounce suppresses the event bursts editors emit for one logical
// save (truncate + write + chmod) to a single trigger per sentinel.
const fileDebounce = time.Second

// applyFilesLocked rebuilds the fsnotify watcher from the registered file
// sentinels. When a sentinel points at a plain file its parent directory
// is watched instead, since most editors replace files on save and a
// watch on the old inode would go stale.
func (e *Engine) applyFilesLocked() {
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	if e.watcher != nil {
		e.watcher.Close()
		e.watcher = nil
	}
	if len(e.items[KindFile]) == 0 {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("sentinel.watch.init_failed", "error", err)
		return
	}

	for id, p := range e.items[KindFile] {
		target := p.Path
		info, err := os.Stat(p.Path)
		if err != nil {
			slog.Warn("sentinel.watch.path_missing", "id", id, "path", p.Path)
			continue
		}
		if !info.IsDir() {
			target = filepath.Dir(p.Path)
		}
		if err := w.Add(target); err != nil {
			slog.Warn("sentinel.watch.add_failed", "id", id, "path", target, "error", err)
		}
	}

	e.watcher = w
	ctx, cancel := context.WithCancel(e.runCtx)
	e.watchCancel = cancel
	e.wg.Add(1)
	go e.pumpFileEvents(ctx, w)
}

func (e *Engine) pumpFileEvents(ctx context.Context, w *fsnotify.Watcher) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			e.handleFileEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("sentinel.watch.error", "error", err)
		}
	}
}

func (e *Engine) handleFileEvent(ev fsnotify.Event) {
	// Events on directories themselves are noise; only files matter.
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return
	}

	type hit struct {
		id string
		p  Payload
	}
	now := time.Now()

	e.mu.Lock()
	var hits []hit
	for id, p := range e.items[KindFile] {
		if !fileEventMatches(p.Path, ev.Name) {
			continue
		}
		if now.Sub(e.lastFire[id]) < fileDebounce {
			continue
		}
		e.lastFire[id] = now
		hits = append(hits, hit{id, p})
	}
	e.mu.Unlock()

	for _, h := range hits {
		e.trigger(fmt.Sprintf("[File Sentinel Triggered] Path: %s | Event: %s | Watch Reason: %s",
			ev.Name, strings.ToLower(ev.Op.String()), h.p.Description))
	}
}

// fileEventMatches reports whether an event at eventPath belongs to the
// sentinel watching watched. A file sentinel matches only its own path
// (its parent directory is what fsnotify actually watches); a directory
// sentinel matches anything directly inside it.
func fileEventMatches(watched, eventPath string) bool {
	watched = filepath.Clean(watched)
	eventPath = filepath.Clean(eventPath)
	if watched == eventPath {
		return true
	}
	return filepath.Dir(eventPath) == watched
}
