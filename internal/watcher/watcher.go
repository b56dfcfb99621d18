// Package watcher turns filesystem notifications into vault rename and
// creation events.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultmend/vaultmend/internal/vault"
)

// EventType classifies a vault event.
type EventType int

const (
	// EventRename is a tracked move: the old path is known.
	EventRename EventType = iota
	// EventCreate is a fresh appearance: only the new path and its name are
	// known. Covers external moves seen as delete+create.
	EventCreate
)

// Event is one vault change delivered to subscribers.
type Event struct {
	Type    EventType
	Path    string // vault-relative new path
	OldPath string // vault-relative prior path, rename only
}

// removedEntry remembers a recently removed image so a subsequent create
// with the same name can be paired into a rename.
type removedEntry struct {
	path string
	at   time.Time
}

// Watcher watches a vault for image file changes.
type Watcher struct {
	vault        *vault.Vault
	logger       *slog.Logger
	watcher      *fsnotify.Watcher
	debounce     time.Duration
	renameWindow time.Duration

	mu      sync.Mutex
	pending map[string]time.Time    // created paths awaiting debounce
	removed map[string]removedEntry // lowercased base name -> prior path

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Config holds watcher configuration.
type Config struct {
	Vault        *vault.Vault
	Debounce     time.Duration
	RenameWindow time.Duration
	Logger       *slog.Logger
}

// New creates a vault watcher.
func New(cfg Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	renameWindow := cfg.RenameWindow
	if renameWindow == 0 {
		renameWindow = 2 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		vault:        cfg.Vault,
		logger:       logger,
		watcher:      fsWatcher,
		debounce:     debounce,
		renameWindow: renameWindow,
		pending:      make(map[string]time.Time),
		removed:      make(map[string]removedEntry),
		subs:         make(map[int]func(Event)),
	}, nil
}

// Subscription is a registered event handler. Cancel deregisters it;
// no events are delivered after Cancel returns.
type Subscription struct {
	w  *Watcher
	id int
}

// Cancel deregisters the subscription.
func (s *Subscription) Cancel() {
	s.w.subMu.Lock()
	delete(s.w.subs, s.id)
	s.w.subMu.Unlock()
}

// Subscribe registers a handler for vault events.
func (w *Watcher) Subscribe(fn func(Event)) *Subscription {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	w.nextID++
	id := w.nextID
	w.subs[id] = fn
	return &Subscription{w: w, id: id}
}

func (w *Watcher) dispatch(ev Event) {
	w.subMu.Lock()
	handlers := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		handlers = append(handlers, fn)
	}
	w.subMu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Start begins watching the vault directory tree.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.vault.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.vault.Root() {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("started watching vault", "path", w.vault.Root())

	go w.processEvents(ctx)
	go w.processDebounced(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// New directories need to be added to the watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
			return
		}
	}

	if !w.vault.IsImage(event.Name) {
		return
	}

	rel, err := w.vault.Rel(event.Name)
	if err != nil {
		return
	}

	switch {
	case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
		// Hold the old identity so a matching create becomes a rename.
		w.mu.Lock()
		w.removed[strings.ToLower(base)] = removedEntry{path: rel, at: time.Now()}
		w.mu.Unlock()

	case event.Op&fsnotify.Create != 0:
		w.mu.Lock()
		w.pending[rel] = time.Now()
		w.mu.Unlock()
	}
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for _, ev := range w.collectReady(time.Now()) {
				w.dispatch(ev)
			}
		}
	}
}

// collectReady drains debounced creates, pairing each with a recent removal
// of the same base name when one exists.
func (w *Watcher) collectReady(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []Event
	for rel, queued := range w.pending {
		if now.Sub(queued) < w.debounce {
			continue
		}
		delete(w.pending, rel)

		key := strings.ToLower(vault.BaseName(rel))
		if old, ok := w.removed[key]; ok && now.Sub(old.at) <= w.renameWindow+w.debounce {
			delete(w.removed, key)
			if old.path != rel {
				ready = append(ready, Event{Type: EventRename, Path: rel, OldPath: old.path})
				continue
			}
			// Same path reappeared; nothing moved.
			continue
		}

		ready = append(ready, Event{Type: EventCreate, Path: rel})
	}

	// Drop removals that were never paired.
	for key, old := range w.removed {
		if now.Sub(old.at) > w.renameWindow+w.debounce {
			delete(w.removed, key)
		}
	}

	return ready
}
