package vault

import (
	"path/filepath"
	"strings"
)

// NormalizePath cleans a vault-relative path: forward slashes, no leading
// "./" or "/". The vault root is the empty string.
func NormalizePath(p string) string {
	clean := filepath.ToSlash(filepath.Clean(p))
	clean = strings.TrimPrefix(clean, "./")
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		return ""
	}
	return clean
}

// RootPath returns the vault-root absolute form of a path: normalized and
// prefixed with "/".
func RootPath(p string) string {
	return "/" + NormalizePath(p)
}

// BaseName returns the final path segment of a vault path.
func BaseName(p string) string {
	p = NormalizePath(p)
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// SplitName splits a file name into base and extension (without the dot).
// "img.png" → ("img", "png"); "README" → ("README", "").
func SplitName(name string) (base, ext string) {
	e := filepath.Ext(name)
	return name[:len(name)-len(e)], strings.TrimPrefix(e, ".")
}
