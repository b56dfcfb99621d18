// Package main provides the entry point for the vaultmend daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vaultmend/vaultmend/internal/config"
	"github.com/vaultmend/vaultmend/internal/paste"
	"github.com/vaultmend/vaultmend/internal/rewrite"
	"github.com/vaultmend/vaultmend/internal/selection"
	"github.com/vaultmend/vaultmend/internal/server"
	"github.com/vaultmend/vaultmend/internal/vault"
	"github.com/vaultmend/vaultmend/internal/watcher"
)

func main() {
	// Parse flags
	vaultPath := flag.String("vault", "", "Path to the vault directory")
	configPath := flag.String("config", "", "Path to YAML config file (default: <vault>/.vaultmend.yaml)")
	mcpAddr := flag.String("mcp", ":8750", "MCP HTTP server address (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	noClipboard := flag.Bool("no-clipboard", false, "Disable mirroring the cut selection to the system clipboard")
	flag.Parse()

	// Configure logging
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Validate required flags
	if *vaultPath == "" {
		fmt.Fprintln(os.Stderr, "error: -vault flag is required")
		flag.Usage()
		os.Exit(1)
	}

	absVaultPath, err := filepath.Abs(*vaultPath)
	if err != nil {
		slog.Error("failed to resolve vault path", "error", err)
		os.Exit(1)
	}

	if *configPath == "" {
		*configPath = filepath.Join(absVaultPath, ".vaultmend.yaml")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	slog.Info("starting vaultmend",
		"vault", absVaultPath,
		"mcp", *mcpAddr,
		"attachment_folder", cfg.AttachmentFolder,
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the vault
	v, err := vault.Open(vault.Config{
		Root:             absVaultPath,
		MarkupExtensions: cfg.MarkupExtensions,
		ImageExtensions:  cfg.ImageExtensions,
		Logger:           logger,
	})
	if err != nil {
		slog.Error("failed to open vault", "error", err)
		os.Exit(1)
	}

	rewriter := rewrite.New(v, logger)

	var mirror selection.Mirror
	if !*noClipboard {
		mirror = selection.ClipboardMirror{}
	}
	tracker := selection.New(selection.Config{
		Files:    v,
		Relinker: rewriter,
		Mirror:   mirror,
		Logger:   logger,
	})
	// The held selection must not outlive the daemon.
	defer tracker.Clear()

	pasteHandler := paste.New(paste.Config{
		Store:            v,
		AttachmentFolder: cfg.AttachmentFolder,
		Logger:           logger,
	})

	// Start the vault watcher
	w, err := watcher.New(watcher.Config{
		Vault:        v,
		Debounce:     cfg.Debounce(),
		RenameWindow: cfg.RenameWindow(),
		Logger:       logger,
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	sub := w.Subscribe(func(ev watcher.Event) {
		switch ev.Type {
		case watcher.EventRename:
			docs, err := rewriter.RewriteReferences(rewrite.IdentityFor(ev.OldPath), ev.Path)
			if err != nil {
				slog.Error("rename rewrite failed", "old", ev.OldPath, "new", ev.Path, "error", err)
				return
			}
			slog.Info("handled rename", "old", ev.OldPath, "new", ev.Path, "docs", len(docs))

		case watcher.EventCreate:
			docs, err := rewriter.RewriteByName(vault.BaseName(ev.Path), ev.Path)
			if err != nil {
				slog.Error("create rewrite failed", "path", ev.Path, "error", err)
				return
			}
			if len(docs) > 0 {
				slog.Info("handled new file", "path", ev.Path, "docs", len(docs))
			}
		}
	})
	defer sub.Cancel()

	if err := w.Start(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	defer func() { _ = w.Stop() }()

	// Start MCP HTTP server
	var mcpHTTPServer *http.Server
	if *mcpAddr != "" {
		mcpServer := server.NewMCPServer(server.MCPConfig{
			Vault:    v,
			Rewriter: rewriter,
			Tracker:  tracker,
			Paste:    pasteHandler,
			Logger:   logger,
		})

		mcpHTTPServer = &http.Server{
			Addr:    *mcpAddr,
			Handler: mcpServer.HTTPHandler(),
		}

		go func() {
			slog.Info("starting MCP HTTP server", "addr", *mcpAddr)
			if err := mcpHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("MCP HTTP server error", "error", err)
			}
		}()
	}

	slog.Info("vaultmend ready", "vault", absVaultPath)

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if mcpHTTPServer != nil {
		if err := mcpHTTPServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("MCP HTTP server shutdown error", "error", err)
		}
	}
	slog.Info("shutdown complete")
}
