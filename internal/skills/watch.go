package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rescanDebounce collapses bursts of filesystem events (git clone, skill
// migration) into a single rescan.
const rescanDebounce = time.Second

// Watch keeps the registry in sync with the skills root on disk. It blocks
// until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create skills watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.root); err != nil {
		return fmt.Errorf("watch skills root: %w", err)
	}
	for _, sk := range r.List() {
		if err := watcher.Add(sk.Path); err != nil {
			slog.Warn("watch skill dir failed", "skill", sk.Name, "error", err)
		}
	}

	var mu sync.Mutex
	var pending *time.Timer
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(rescanDebounce, func() {
			if err := r.Scan(); err != nil {
				slog.Warn("skill rescan failed", "error", err)
				return
			}
			slog.Debug("skill registry rescanned", "skills", len(r.List()))
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			mu.Unlock()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if fi, statErr := os.Stat(event.Name); statErr == nil && fi.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						slog.Warn("watch new skill dir failed", "path", event.Name, "error", err)
					}
				}
			}
			schedule()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("skills watcher error", "error", werr)
		}
	}
}
