// Package config loads vaultmend configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	// AttachmentFolder is the preferred vault folder for pasted images.
	// Empty means "use the active document's parent folder, then the root".
	AttachmentFolder string `yaml:"attachment_folder"`

	// ImageExtensions are the file extensions (without dot) treated as images.
	ImageExtensions []string `yaml:"image_extensions"`

	// MarkupExtensions are the document extensions scanned for references.
	MarkupExtensions []string `yaml:"markup_extensions"`

	// DebounceMS delays processing of watcher events, in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`

	// RenameWindowMS is how long a removed file waits to be paired with a
	// created one before the creation is treated as a fresh file.
	RenameWindowMS int `yaml:"rename_window_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ImageExtensions:  []string{"png", "jpg", "jpeg", "gif", "bmp", "svg", "webp"},
		MarkupExtensions: []string{"md"},
		DebounceMS:       500,
		RenameWindowMS:   2000,
	}
}

// Load reads a YAML configuration file, filling unset fields with defaults.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.ImageExtensions) == 0 {
		cfg.ImageExtensions = Default().ImageExtensions
	}
	if len(cfg.MarkupExtensions) == 0 {
		cfg.MarkupExtensions = Default().MarkupExtensions
	}
	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = Default().DebounceMS
	}
	if cfg.RenameWindowMS <= 0 {
		cfg.RenameWindowMS = Default().RenameWindowMS
	}

	return cfg, nil
}

// Debounce returns the debounce interval as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RenameWindow returns the rename pairing window as a duration.
func (c Config) RenameWindow() time.Duration {
	return time.Duration(c.RenameWindowMS) * time.Millisecond
}
