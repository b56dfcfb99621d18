// Package paste saves pasted image blobs into the vault and produces the
// reference text the editor inserts at the cursor.
package paste

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vaultmend/vaultmend/internal/rewrite"
	"github.com/vaultmend/vaultmend/internal/vault"
)

// Store is the subset of vault operations the handler needs.
type Store interface {
	Exists(path string) bool
	CreateFolder(path string) error
	WriteBinary(path string, data []byte) error
}

// Handler saves pasted binaries.
type Handler struct {
	store            Store
	attachmentFolder string
	logger           *slog.Logger
	now              func() time.Time
}

// Config holds handler configuration.
type Config struct {
	Store Store

	// AttachmentFolder is the preferred destination folder. Empty falls back
	// to the active document's parent folder, then the vault root.
	AttachmentFolder string

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a paste handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		store:            cfg.Store,
		attachmentFolder: vault.NormalizePath(cfg.AttachmentFolder),
		logger:           logger,
		now:              now,
	}
}

// resolveFolder picks the destination folder: configured attachment folder,
// the active document's parent, then the vault root.
func (h *Handler) resolveFolder(activeDoc string) string {
	if h.attachmentFolder != "" {
		return h.attachmentFolder
	}
	if activeDoc = vault.NormalizePath(activeDoc); activeDoc != "" {
		if idx := strings.LastIndex(activeDoc, "/"); idx >= 0 {
			return activeDoc[:idx]
		}
	}
	return ""
}

// SaveBlob writes a pasted image into the vault under a timestamped name,
// resolving name collisions with a numeric suffix. It returns the saved
// vault-relative path and the Markdown reference to insert at the cursor.
func (h *Handler) SaveBlob(data []byte, ext, activeDoc string) (savedPath, reference string, err error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty paste payload")
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "png"
	}

	folder := h.resolveFolder(activeDoc)
	base := "Pasted image " + h.now().Format("20060102-150405")

	desired := base + "." + ext
	if folder != "" {
		desired = folder + "/" + desired
	}

	dest, err := vault.UniquePath(desired, base, ext, folder, h.store.Exists)
	if err != nil {
		return "", "", err
	}

	if folder != "" {
		if err := h.store.CreateFolder(folder); err != nil {
			return "", "", fmt.Errorf("create attachment folder: %w", err)
		}
	}

	if err := h.store.WriteBinary(dest, data); err != nil {
		return "", "", fmt.Errorf("write pasted image: %w", err)
	}

	h.logger.Info("saved pasted image", "path", dest, "bytes", len(data))
	return dest, "![](" + rewrite.EncodePath(vault.RootPath(dest)) + ")", nil
}
