package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"
)

// Sentinel kinds. They double as the top-level keys of sentinels.json.
const (
	KindTime     = "time"
	KindFile     = "file"
	KindBehavior = "behavior"
)

var (
	ErrPathNotFound = errors.New("path does not exist")
	ErrInvalidCron  = errors.New("invalid cron expression")
)

// Payload is one persisted sentinel entry; only the fields of its kind are
// set, plus the description every kind carries.
type Payload struct {
	Interval    int    `json:"interval,omitempty"`
	Unit        string `json:"unit,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	Path        string `json:"path,omitempty"`
	KeyCombo    string `json:"key_combo,omitempty"`
	Description string `json:"description"`
}

// Callback receives composed trigger messages on the dispatch goroutine.
type Callback func(message string)

// Engine owns the three watcher subsystems (time, file, hotkey), their
// persistence, and the single delivery callback. Mutations re-apply the
// affected subsystem immediately and persist the whole set.
type Engine struct {
	mu    sync.Mutex
	path  string
	items map[string]map[string]Payload

	callback Callback
	hotkeys  HotkeyListener

	timerCancels map[string]context.CancelFunc
	watcher      *fsnotify.Watcher
	watchCancel  context.CancelFunc
	lastFire     map[string]time.Time

	events  chan string
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	lastID  int64
}

// New creates an engine persisting to path (sentinels.json). hotkeys may
// be nil when the host has no key-event source.
func New(path string, hotkeys HotkeyListener) *Engine {
	return &Engine{
		path:         path,
		items:        emptyItems(),
		hotkeys:      hotkeys,
		timerCancels: make(map[string]context.CancelFunc),
		lastFire:     make(map[string]time.Time),
		events:       make(chan string, 64),
	}
}

func emptyItems() map[string]map[string]Payload {
	return map[string]map[string]Payload{
		KindTime:     {},
		KindFile:     {},
		KindBehavior: {},
	}
}

// SetCallback installs the cross-goroutine delivery function.
func (e *Engine) SetCallback(cb Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

// Start loads persisted sentinels and brings every subsystem up. Safe to
// call once; subsequent calls are no-ops until Stop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	if err := e.loadLocked(); err != nil {
		slog.Warn("sentinel.load_failed", "path", e.path, "error", err)
	}

	e.runCtx, e.cancel = context.WithCancel(context.Background())
	e.running = true

	e.wg.Add(1)
	go e.dispatch(e.runCtx)

	e.applyTimersLocked()
	e.applyFilesLocked()
	if e.hotkeys != nil {
		if err := e.hotkeys.Start(e.runCtx, e.handleHotkey); err != nil {
			slog.Warn("sentinel.hotkey.start_failed", "error", err)
		}
	}

	slog.Info("sentinel.engine.started",
		"time", len(e.items[KindTime]),
		"file", len(e.items[KindFile]),
		"behavior", len(e.items[KindBehavior]),
	)
	return nil
}

// Stop unregisters all watchers and waits for in-flight deliveries.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	for _, stop := range e.timerCancels {
		stop()
	}
	e.timerCancels = make(map[string]context.CancelFunc)
	if e.watcher != nil {
		e.watcher.Close()
		e.watcher = nil
	}
	hot := e.hotkeys
	e.mu.Unlock()

	if hot != nil {
		hot.Stop()
	}
	e.wg.Wait()
	slog.Info("sentinel.engine.stopped")
}

// AddTime registers a periodic sentinel firing every interval·unit.
func (e *Engine) AddTime(interval int, unit, description string) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive, got %d", interval)
	}
	if intervalDuration(interval, unit) <= 0 {
		return "", fmt.Errorf("unknown unit %q", unit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextIDLocked(KindTime)
	e.items[KindTime][id] = Payload{Interval: interval, Unit: unit, Description: description}
	e.saveLocked()
	if e.running {
		e.applyTimersLocked()
	}
	return id, nil
}

// AddCron registers a time sentinel driven by a cron expression.
func (e *Engine) AddCron(expr, description string) (string, error) {
	if !gronx.New().IsValid(expr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCron, expr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextIDLocked(KindTime)
	e.items[KindTime][id] = Payload{CronExpr: expr, Description: description}
	e.saveLocked()
	if e.running {
		e.applyTimersLocked()
	}
	return id, nil
}

// AddFile registers a watch on a file or directory.
func (e *Engine) AddFile(path, description string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", ErrPathNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextIDLocked(KindFile)
	e.items[KindFile][id] = Payload{Path: path, Description: description}
	e.saveLocked()
	if e.running {
		e.applyFilesLocked()
	}
	return id, nil
}

// AddBehavior registers a global hotkey trigger.
func (e *Engine) AddBehavior(keyCombo, description string) (string, error) {
	if keyCombo == "" {
		return "", fmt.Errorf("key_combo is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextIDLocked(KindBehavior)
	e.items[KindBehavior][id] = Payload{KeyCombo: keyCombo, Description: description}
	e.saveLocked()
	return id, nil
}

// List returns a deep copy of every registered sentinel, kind → id → payload.
func (e *Engine) List() map[string]map[string]Payload {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]map[string]Payload, len(e.items))
	for kind, m := range e.items {
		cp := make(map[string]Payload, len(m))
		for id, p := range m {
			cp[id] = p
		}
		out[kind] = cp
	}
	return out
}

// Remove deletes one sentinel and re-applies its subsystem. Reports
// whether anything was removed.
func (e *Engine) Remove(kind, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.items[kind]
	if !ok {
		return false
	}
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	e.saveLocked()

	if e.running {
		switch kind {
		case KindTime:
			e.applyTimersLocked()
		case KindFile:
			e.applyFilesLocked()
		}
	}
	return true
}

// nextIDLocked allocates "<kind>_<unix>" ids, bumping the clock value on
// collision so rapid adds stay unique.
func (e *Engine) nextIDLocked(kind string) string {
	sec := time.Now().Unix()
	if sec <= e.lastID {
		sec = e.lastID + 1
	}
	e.lastID = sec
	return fmt.Sprintf("%s_%d", kind, sec)
}

// trigger queues a composed message for delivery. Never blocks a watcher:
// when the dispatch queue is full the message is dropped with a warning.
func (e *Engine) trigger(msg string) {
	slog.Info("sentinel.triggered", "message", msg)
	select {
	case e.events <- msg:
	default:
		slog.Warn("sentinel.dispatch.overflow", "dropped", msg)
	}
}

// dispatch delivers queued trigger messages to the callback, one at a
// time, on its own goroutine.
func (e *Engine) dispatch(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.events:
			e.mu.Lock()
			cb := e.callback
			e.mu.Unlock()
			if cb != nil {
				cb(msg)
			}
		}
	}
}

func (e *Engine) handleHotkey(combo string) {
	e.mu.Lock()
	var hits []Payload
	for _, p := range e.items[KindBehavior] {
		if p.KeyCombo == combo {
			hits = append(hits, p)
		}
	}
	e.mu.Unlock()

	for _, p := range hits {
		e.trigger(fmt.Sprintf("[Behavior Sentinel Triggered] Hotkey '%s' pressed. | Action: %s", combo, p.Description))
	}
}

// --- persistence ---

func (e *Engine) loadLocked() error {
	data, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	loaded := emptyItems()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(e.path), err)
	}
	for _, kind := range []string{KindTime, KindFile, KindBehavior} {
		if loaded[kind] == nil {
			loaded[kind] = map[string]Payload{}
		}
	}
	e.items = loaded
	return nil
}

func (e *Engine) saveLocked() {
	data, err := json.MarshalIndent(e.items, "", "  ")
	if err != nil {
		slog.Error("sentinel.save_failed", "error", err)
		return
	}
	if err := writeFileAtomic(e.path, data); err != nil {
		slog.Error("sentinel.save_failed", "path", e.path, "error", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sentinels-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
