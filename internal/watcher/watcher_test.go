package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultmend/vaultmend/internal/vault"
)

func createTempVault(t *testing.T) *vault.Vault {
	t.Helper()
	dir, err := os.MkdirTemp("", "watcher-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	v, err := vault.Open(vault.Config{Root: dir})
	if err != nil {
		t.Fatalf("failed to open vault: %v", err)
	}
	return v
}

func newTestWatcher(t *testing.T, v *vault.Vault) *Watcher {
	t.Helper()
	w, err := New(Config{
		Vault:        v,
		Debounce:     50 * time.Millisecond,
		RenameWindow: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

// eventCollector gathers dispatched events.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCollector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestNewDefaults(t *testing.T) {
	v := createTempVault(t)
	w, err := New(Config{Vault: v})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Stop()

	if w.debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", w.debounce)
	}
	if w.renameWindow != 2*time.Second {
		t.Errorf("renameWindow = %v, want 2s", w.renameWindow)
	}
}

func TestStartStop(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
}

func TestCollectReadyPairsRename(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.removed["img.png"] = removedEntry{path: "old/img.png", at: now.Add(-100 * time.Millisecond)}
	w.pending["new/img.png"] = now.Add(-100 * time.Millisecond)

	events := w.collectReady(now)
	if len(events) != 1 {
		t.Fatalf("events = %v, want one", events)
	}
	ev := events[0]
	if ev.Type != EventRename || ev.OldPath != "old/img.png" || ev.Path != "new/img.png" {
		t.Errorf("event = %+v, want rename old/img.png -> new/img.png", ev)
	}
	if len(w.removed) != 0 {
		t.Error("paired removal should be consumed")
	}
}

func TestCollectReadyUnpairedCreate(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.pending["inbox/fresh.png"] = now.Add(-100 * time.Millisecond)

	events := w.collectReady(now)
	if len(events) != 1 {
		t.Fatalf("events = %v, want one", events)
	}
	if events[0].Type != EventCreate || events[0].Path != "inbox/fresh.png" {
		t.Errorf("event = %+v, want create inbox/fresh.png", events[0])
	}
}

func TestCollectReadyRespectsDebounce(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.pending["inbox/fresh.png"] = now

	if events := w.collectReady(now); len(events) != 0 {
		t.Errorf("events = %v, want none before the debounce elapses", events)
	}
}

func TestCollectReadySamePathReappearance(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.removed["img.png"] = removedEntry{path: "a/img.png", at: now.Add(-100 * time.Millisecond)}
	w.pending["a/img.png"] = now.Add(-100 * time.Millisecond)

	if events := w.collectReady(now); len(events) != 0 {
		t.Errorf("events = %v, want none when nothing moved", events)
	}
}

func TestCollectReadyExpiredRemovalBecomesCreate(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.removed["img.png"] = removedEntry{path: "old/img.png", at: now.Add(-10 * time.Second)}
	w.pending["new/img.png"] = now.Add(-100 * time.Millisecond)

	events := w.collectReady(now)
	if len(events) != 1 || events[0].Type != EventCreate {
		t.Fatalf("events = %v, want a single create", events)
	}
	if len(w.removed) != 0 {
		t.Error("expired removals should be purged")
	}
}

func TestSubscriptionCancel(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	col := &eventCollector{}
	sub := w.Subscribe(col.handle)

	w.dispatch(Event{Type: EventCreate, Path: "a.png"})
	sub.Cancel()
	w.dispatch(Event{Type: EventCreate, Path: "b.png"})

	events := col.snapshot()
	if len(events) != 1 || events[0].Path != "a.png" {
		t.Errorf("events = %v, want only the pre-cancel event", events)
	}
}

func TestRenameDetection(t *testing.T) {
	v := createTempVault(t)

	oldDir := filepath.Join(v.Root(), "old")
	newDir := filepath.Join(v.Root(), "new")
	for _, d := range []string{oldDir, newDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
	}
	oldPath := filepath.Join(oldDir, "img.png")
	if err := os.WriteFile(oldPath, []byte("img"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w := newTestWatcher(t, v)
	col := &eventCollector{}
	sub := w.Subscribe(col.handle)
	defer sub.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.Rename(oldPath, filepath.Join(newDir, "img.png")); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		for _, ev := range col.snapshot() {
			if ev.Type == EventRename && ev.OldPath == "old/img.png" && ev.Path == "new/img.png" {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Errorf("rename event not observed, got %v", col.snapshot())
	}
}

func TestCreateDetection(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)
	col := &eventCollector{}
	sub := w.Subscribe(col.handle)
	defer sub.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(v.Root(), "fresh.png"), []byte("img"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ok := waitFor(t, 3*time.Second, func() bool {
		for _, ev := range col.snapshot() {
			if ev.Type == EventCreate && ev.Path == "fresh.png" {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Errorf("create event not observed, got %v", col.snapshot())
	}
}

func TestIgnoresNonImageFiles(t *testing.T) {
	v := createTempVault(t)
	w := newTestWatcher(t, v)

	now := time.Now()
	w.handleFsEvent(fsnotify.Event{
		Name: filepath.Join(v.Root(), "note.md"),
		Op:   fsnotify.Create,
	})

	if events := w.collectReady(now.Add(time.Second)); len(events) != 0 {
		t.Errorf("events = %v, want none for non-image files", events)
	}
}
