// Package selection tracks files marked "cut" until they are pasted into a
// destination folder.
package selection

import (
	"log/slog"
	"sync"

	"github.com/vaultmend/vaultmend/internal/rewrite"
	"github.com/vaultmend/vaultmend/internal/vault"
)

// Files is the subset of vault operations a paste needs.
type Files interface {
	Exists(path string) bool
	Move(oldPath, newPath string) error
	IsImage(path string) bool
}

// Relinker rewrites references after a file has moved.
type Relinker interface {
	RewriteReferences(identity rewrite.Identity, target string) ([]string, error)
}

// Mirror publishes the held selection outside the process, typically to the
// system clipboard, and supplies one when the tracker itself holds nothing.
type Mirror interface {
	Publish(paths []string) error
	Fetch() ([]string, error)
}

// Moved records one successfully pasted file.
type Moved struct {
	From        string
	To          string
	DocsChanged int
}

// Failure records one file the paste could not move.
type Failure struct {
	Path string
	Err  error
}

// Report accumulates per-file outcomes of a paste. Failures never roll back
// earlier successes.
type Report struct {
	Moved  []Moved
	Failed []Failure
}

// Tracker holds the pending cut selection. It has two states: idle (nothing
// held) and holding. The held set lives exactly as long as the daemon; Clear
// must be called on shutdown.
type Tracker struct {
	mu       sync.Mutex
	held     []string
	files    Files
	relinker Relinker
	mirror   Mirror
	logger   *slog.Logger
}

// Config holds tracker configuration.
type Config struct {
	Files    Files
	Relinker Relinker
	Mirror   Mirror // optional
	Logger   *slog.Logger
}

// New creates an idle tracker.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		files:    cfg.Files,
		relinker: cfg.Relinker,
		mirror:   cfg.Mirror,
		logger:   logger,
	}
}

// Cut marks the given files as cut, replacing any previously held set.
func (t *Tracker) Cut(paths []string) {
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		normalized = append(normalized, vault.NormalizePath(p))
	}

	t.mu.Lock()
	t.held = normalized
	t.mu.Unlock()

	if t.mirror != nil {
		if err := t.mirror.Publish(normalized); err != nil {
			t.logger.Warn("failed to mirror cut selection", "error", err)
		}
	}

	t.logger.Info("files cut", "count", len(normalized))
}

// Holding reports whether any files are currently held.
func (t *Tracker) Holding() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held) > 0
}

// Clear drops the held selection. Called on shutdown so stale identities do
// not outlive the files they point at.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.held = nil
	t.mu.Unlock()
}

// take snapshots and clears the held set in one step.
func (t *Tracker) take() []string {
	t.mu.Lock()
	held := t.held
	t.held = nil
	t.mu.Unlock()

	if len(held) == 0 && t.mirror != nil {
		fetched, err := t.mirror.Fetch()
		if err != nil {
			t.logger.Warn("failed to read mirrored selection", "error", err)
			return nil
		}
		held = fetched
	}
	return held
}

// PasteInto moves every held file into folder, resolving name collisions
// with a numeric suffix, and rewrites references to each moved image.
// Per-file failures are accumulated; the batch always runs to completion and
// the tracker ends idle. A paste while idle is a no-op.
func (t *Tracker) PasteInto(folder string) Report {
	folder = vault.NormalizePath(folder)
	held := t.take()

	var report Report
	for _, p := range held {
		name := vault.BaseName(p)
		base, ext := vault.SplitName(name)

		desired := name
		if folder != "" {
			desired = folder + "/" + name
		}

		dest, err := vault.UniquePath(desired, base, ext, folder, t.files.Exists)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Path: p, Err: err})
			t.logger.Error("failed to find destination", "file", p, "error", err)
			continue
		}

		if err := t.files.Move(p, dest); err != nil {
			report.Failed = append(report.Failed, Failure{Path: p, Err: err})
			t.logger.Error("failed to move file", "file", p, "dest", dest, "error", err)
			continue
		}

		moved := Moved{From: p, To: dest}
		if t.files.IsImage(dest) {
			docs, err := t.relinker.RewriteReferences(rewrite.IdentityFor(p), dest)
			if err != nil {
				t.logger.Error("failed to rewrite references", "file", p, "error", err)
			}
			moved.DocsChanged = len(docs)
		}
		report.Moved = append(report.Moved, moved)
	}

	t.logger.Info("paste complete",
		"folder", folder,
		"moved", len(report.Moved),
		"failed", len(report.Failed),
	)
	return report
}

// PasteToRoot pastes the held files into the vault root.
func (t *Tracker) PasteToRoot() Report {
	return t.PasteInto("")
}
