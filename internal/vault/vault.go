// Package vault provides filesystem-backed access to a note vault.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Kind discriminates vault entries.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindFolder is a directory.
	KindFolder
)

// Entry describes a file or folder inside the vault.
type Entry struct {
	Kind      Kind
	Path      string // vault-relative, forward slashes, no leading slash
	Name      string // final path segment
	Extension string // lowercased, without the dot; empty for folders
}

// ErrMoveConflict is returned by Move when the destination already exists.
var ErrMoveConflict = errors.New("destination already exists")

// Vault is a root folder tree of documents and attachments.
type Vault struct {
	root       string
	markupExts map[string]bool
	imageExts  map[string]bool
	logger     *slog.Logger
}

// Config holds vault configuration.
type Config struct {
	// Root is the absolute filesystem path of the vault.
	Root string

	// MarkupExtensions are file extensions (without dot) treated as
	// rewritable documents. Defaults to md.
	MarkupExtensions []string

	// ImageExtensions are file extensions (without dot) treated as images.
	ImageExtensions []string

	// Logger for vault operations.
	Logger *slog.Logger
}

// DefaultImageExtensions are the image types recognized when none are configured.
var DefaultImageExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "svg", "webp"}

// Open opens an existing vault directory.
func Open(cfg Config) (*Vault, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", cfg.Root)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	markup := cfg.MarkupExtensions
	if len(markup) == 0 {
		markup = []string{"md"}
	}
	images := cfg.ImageExtensions
	if len(images) == 0 {
		images = DefaultImageExtensions
	}

	return &Vault{
		root:       cfg.Root,
		markupExts: extSet(markup),
		imageExts:  extSet(images),
		logger:     logger,
	}, nil
}

func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return set
}

// Root returns the vault's absolute filesystem root.
func (v *Vault) Root() string {
	return v.root
}

// Abs converts a vault-relative path to an absolute filesystem path.
func (v *Vault) Abs(rel string) string {
	return filepath.Join(v.root, filepath.FromSlash(NormalizePath(rel)))
}

// Rel converts an absolute filesystem path to a vault-relative one.
func (v *Vault) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", nil
	}
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("path escapes vault: %s", abs)
	}
	return rel, nil
}

// EntryFor builds the tagged entry for a vault-relative path without
// touching the filesystem. Kind is KindFile unless told otherwise by Stat.
func EntryFor(rel string, kind Kind) Entry {
	rel = NormalizePath(rel)
	name := rel
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		name = rel[idx+1:]
	}
	ext := ""
	if kind == KindFile {
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	}
	return Entry{Kind: kind, Path: rel, Name: name, Extension: ext}
}

// Stat returns the entry for a vault-relative path.
func (v *Vault) Stat(rel string) (Entry, error) {
	info, err := os.Stat(v.Abs(rel))
	if err != nil {
		return Entry{}, err
	}
	kind := KindFile
	if info.IsDir() {
		kind = KindFolder
	}
	return EntryFor(rel, kind), nil
}

// Exists reports whether a vault-relative path exists. Transient stat
// failures are treated as "does not exist".
func (v *Vault) Exists(rel string) bool {
	_, err := os.Stat(v.Abs(rel))
	return err == nil
}

// IsImage reports whether the path has a recognized image extension.
func (v *Vault) IsImage(rel string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))
	return v.imageExts[ext]
}

// IsMarkup reports whether the path has a rewritable document extension.
func (v *Vault) IsMarkup(rel string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))
	return v.markupExts[ext]
}

// ListMarkupDocuments returns the vault-relative paths of all rewritable
// documents. Hidden directories are skipped.
func (v *Vault) ListMarkupDocuments() ([]string, error) {
	var docs []string

	err := filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != v.root {
				return filepath.SkipDir
			}
			return nil
		}

		if !v.IsMarkup(path) {
			return nil
		}

		rel, err := v.Rel(path)
		if err != nil {
			return nil
		}
		docs = append(docs, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// Read returns the text content of a document.
func (v *Vault) Read(rel string) (string, error) {
	data, err := os.ReadFile(v.Abs(rel))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the text content of a document.
func (v *Vault) Write(rel string, text string) error {
	return os.WriteFile(v.Abs(rel), []byte(text), 0644)
}

// WriteBinary writes raw bytes to a vault-relative path.
func (v *Vault) WriteBinary(rel string, data []byte) error {
	return os.WriteFile(v.Abs(rel), data, 0644)
}

// CreateFolder creates a folder and any missing parents. It tolerates the
// folder already existing.
func (v *Vault) CreateFolder(rel string) error {
	return os.MkdirAll(v.Abs(rel), 0755)
}

// Move renames a file inside the vault, creating the destination's parent
// folders as needed. It fails with ErrMoveConflict when the destination
// already exists.
func (v *Vault) Move(rel, newRel string) error {
	from := v.Abs(rel)
	to := v.Abs(newRel)

	if _, err := os.Stat(to); err == nil {
		return fmt.Errorf("move %s: %w: %s", rel, ErrMoveConflict, newRel)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return fmt.Errorf("move %s: %w", rel, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move %s: %w", rel, err)
	}

	v.logger.Debug("moved file", "from", rel, "to", newRel)
	return nil
}
