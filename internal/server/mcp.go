// Package server provides the MCP interface editors use to drive vaultmend.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vaultmend/vaultmend/internal/paste"
	"github.com/vaultmend/vaultmend/internal/rewrite"
	"github.com/vaultmend/vaultmend/internal/selection"
	"github.com/vaultmend/vaultmend/internal/vault"
	"github.com/vaultmend/vaultmend/internal/version"
)

// MCPServer exposes move, cut/paste and image-paste operations over MCP.
type MCPServer struct {
	server   *mcp.Server
	vault    *vault.Vault
	rewriter *rewrite.Rewriter
	tracker  *selection.Tracker
	paste    *paste.Handler
	logger   *slog.Logger
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Vault    *vault.Vault
	Rewriter *rewrite.Rewriter
	Tracker  *selection.Tracker
	Paste    *paste.Handler
	Logger   *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(cfg MCPConfig) *MCPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)

	m := &MCPServer{
		server:   server,
		vault:    cfg.Vault,
		rewriter: cfg.Rewriter,
		tracker:  cfg.Tracker,
		paste:    cfg.Paste,
		logger:   logger,
	}

	m.registerTools()
	return m
}

// HTTPHandler returns an http.Handler that serves the MCP protocol over HTTP
// using the streamable HTTP transport.
func (m *MCPServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return m.server
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Logger:       m.logger,
		},
	)
}

func (m *MCPServer) registerTools() {
	m.registerMoveFile()
	m.registerRelinkByName()
	m.registerCutFiles()
	m.registerPasteFiles()
	m.registerPasteImage()
}

// Tool result helper
func toolResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// Error result helper
func errorResult(err error) (*mcp.CallToolResult, error) {
	return toolResult(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// ============ Move Tools ============

type moveFileInput struct {
	Path    string `json:"path" jsonschema:"Vault-relative path of the file to move"`
	NewPath string `json:"new_path" jsonschema:"Vault-relative destination path"`
}

func (m *MCPServer) registerMoveFile() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "move_file",
		Description: "Move a file inside the vault and rewrite image references to it. Destination collisions get a numeric suffix.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input moveFileInput) (*mcp.CallToolResult, any, error) {
		oldPath := vault.NormalizePath(input.Path)
		desired := vault.NormalizePath(input.NewPath)

		folder := ""
		if idx := lastSlash(desired); idx >= 0 {
			folder = desired[:idx]
		}
		base, ext := vault.SplitName(vault.BaseName(desired))

		dest, err := vault.UniquePath(desired, base, ext, folder, m.vault.Exists)
		if err != nil {
			res, _ := errorResult(err)
			return res, nil, nil
		}

		if err := m.vault.Move(oldPath, dest); err != nil {
			m.logger.Error("move failed", "path", oldPath, "error", err)
			res, _ := errorResult(err)
			return res, nil, nil
		}

		docsChanged := 0
		if m.vault.IsImage(dest) {
			docs, err := m.rewriter.RewriteReferences(rewrite.IdentityFor(oldPath), dest)
			if err != nil {
				m.logger.Error("reference rewrite failed", "path", oldPath, "error", err)
			}
			docsChanged = len(docs)
		}

		res, _ := toolResult(map[string]any{
			"success":      true,
			"old_path":     oldPath,
			"new_path":     dest,
			"docs_changed": docsChanged,
		})
		return res, nil, nil
	})
}

type relinkByNameInput struct {
	Name    string `json:"name" jsonschema:"File name to match references by"`
	NewPath string `json:"new_path" jsonschema:"Vault-relative path references should point at"`
}

func (m *MCPServer) registerRelinkByName() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "relink_by_name",
		Description: "Rewrite image references that mention a file name so they point at the given vault path. Used when the old path is unknown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input relinkByNameInput) (*mcp.CallToolResult, any, error) {
		docs, err := m.rewriter.RewriteByName(input.Name, vault.NormalizePath(input.NewPath))
		if err != nil {
			res, _ := errorResult(err)
			return res, nil, nil
		}

		res, _ := toolResult(map[string]any{
			"success":      true,
			"docs_changed": docs,
		})
		return res, nil, nil
	})
}

// ============ Cut/Paste Tools ============

type cutFilesInput struct {
	Paths []string `json:"paths" jsonschema:"Vault-relative paths to mark as cut"`
}

func (m *MCPServer) registerCutFiles() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "cut_files",
		Description: "Mark vault files as cut, replacing any previously held selection",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input cutFilesInput) (*mcp.CallToolResult, any, error) {
		m.tracker.Cut(input.Paths)
		res, _ := toolResult(map[string]any{
			"success": true,
			"held":    len(input.Paths),
		})
		return res, nil, nil
	})
}

type pasteFilesInput struct {
	Folder string `json:"folder,omitempty" jsonschema:"Destination folder; empty pastes into the vault root"`
}

func (m *MCPServer) registerPasteFiles() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "paste_files",
		Description: "Move the cut files into a folder and update image references. Per-file failures do not abort the batch.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pasteFilesInput) (*mcp.CallToolResult, any, error) {
		report := m.tracker.PasteInto(input.Folder)

		moved := make([]map[string]any, 0, len(report.Moved))
		for _, mv := range report.Moved {
			moved = append(moved, map[string]any{
				"from":         mv.From,
				"to":           mv.To,
				"docs_changed": mv.DocsChanged,
			})
		}
		failed := make([]map[string]any, 0, len(report.Failed))
		for _, f := range report.Failed {
			failed = append(failed, map[string]any{
				"path":  f.Path,
				"error": f.Err.Error(),
			})
		}

		res, _ := toolResult(map[string]any{
			"success": len(report.Failed) == 0,
			"moved":   moved,
			"failed":  failed,
		})
		return res, nil, nil
	})
}

// ============ Paste Image Tool ============

type pasteImageInput struct {
	Data           string `json:"data" jsonschema:"Base64-encoded image bytes"`
	Extension      string `json:"extension,omitempty" jsonschema:"Image file extension without dot (default png)"`
	ActiveDocument string `json:"active_document,omitempty" jsonschema:"Vault-relative path of the document being edited"`
}

func (m *MCPServer) registerPasteImage() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "paste_image",
		Description: "Save a pasted image blob into the vault and return the Markdown reference to insert at the cursor",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input pasteImageInput) (*mcp.CallToolResult, any, error) {
		data, err := base64.StdEncoding.DecodeString(input.Data)
		if err != nil {
			res, _ := errorResult(err)
			return res, nil, nil
		}

		savedPath, reference, err := m.paste.SaveBlob(data, input.Extension, input.ActiveDocument)
		if err != nil {
			m.logger.Error("image paste failed", "error", err)
			res, _ := errorResult(err)
			return res, nil, nil
		}

		res, _ := toolResult(map[string]any{
			"success":   true,
			"path":      savedPath,
			"reference": reference,
		})
		return res, nil, nil
	})
}

func lastSlash(p string) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return i
		}
	}
	return -1
}
