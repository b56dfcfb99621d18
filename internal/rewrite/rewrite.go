// Package rewrite updates Markdown and wiki image references across a vault
// when a file's path or name changes.
package rewrite

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/vaultmend/vaultmend/internal/vault"
)

// Identity captures a file's prior path and name for a single rewrite pass.
type Identity struct {
	OldPath string // vault-relative prior path
	OldName string // final path segment of OldPath
}

// IdentityFor derives the identity from a prior vault-relative path.
func IdentityFor(oldPath string) Identity {
	norm := vault.NormalizePath(oldPath)
	return Identity{OldPath: norm, OldName: vault.BaseName(norm)}
}

// Store is the document corpus a rewrite pass scans.
type Store interface {
	ListMarkupDocuments() ([]string, error)
	Read(path string) (string, error)
	Write(path, text string) error
}

// Rewriter scans a document store and rewrites image references in place.
type Rewriter struct {
	store  Store
	logger *slog.Logger
}

// New creates a rewriter over the given store.
func New(store Store, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{store: store, logger: logger}
}

// EncodePath percent-encodes each path segment (spaces become %20), leaving
// the slashes intact. Matches what link insertion produces for Markdown
// targets.
func EncodePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

type ruleKind int

const (
	markdownRule ruleKind = iota
	wikiRule
)

// rule is one case-insensitive reference pattern plus its syntax family,
// which decides how the replacement target is encoded.
type rule struct {
	re   *regexp.Regexp
	kind ruleKind
}

// markdownByPath matches ![alt](old-path), tolerating angle brackets around
// the target, a leading "/" or "./", and percent-encoded form.
func markdownByPath(rawPath, encPath string) rule {
	pattern := `(?i)!\[([^\]]*)\]\(<?(?:\./|/)?(?:` +
		regexp.QuoteMeta(rawPath) + `|` + regexp.QuoteMeta(encPath) + `)>?\)`
	return rule{re: regexp.MustCompile(pattern), kind: markdownRule}
}

// markdownByName matches ![alt](...old-name...): any target containing the
// file name as a substring. Looser than the path rule; used when only the
// name is known.
func markdownByName(rawName, encName string) rule {
	pattern := `(?i)!\[([^\]]*)\]\(<?[^)]*(?:` +
		regexp.QuoteMeta(rawName) + `|` + regexp.QuoteMeta(encName) + `)[^)]*>?\)`
	return rule{re: regexp.MustCompile(pattern), kind: markdownRule}
}

// wikiByPath matches ![[...old-path]]. Wiki targets are never
// percent-encoded, so only the raw form is matched.
func wikiByPath(rawPath string) rule {
	pattern := `(?i)!\[\[[^\]]*` + regexp.QuoteMeta(rawPath) + `\]\]`
	return rule{re: regexp.MustCompile(pattern), kind: wikiRule}
}

// wikiByName matches ![[...old-name...]].
func wikiByName(rawName string) rule {
	pattern := `(?i)!\[\[[^\]]*` + regexp.QuoteMeta(rawName) + `[^\]]*\]\]`
	return rule{re: regexp.MustCompile(pattern), kind: wikiRule}
}

// RewriteReferences rewrites every reference to the old identity across the
// store so it points at target (a vault path; normalized to start with "/").
// Path-based rules run before name-based ones. Returns the ids of documents
// that changed.
func (r *Rewriter) RewriteReferences(identity Identity, target string) ([]string, error) {
	rawPath := vault.NormalizePath(identity.OldPath)
	rawName := identity.OldName
	if rawName == "" {
		rawName = vault.BaseName(rawPath)
	}

	rules := []rule{
		markdownByPath(rawPath, EncodePath(rawPath)),
		wikiByPath(rawPath),
		markdownByName(rawName, EncodePath(rawName)),
		wikiByName(rawName),
	}
	return r.rewrite(rules, vault.RootPath(target))
}

// RewriteByName runs only the two by-name rules. Used when a file's
// appearance is detected as a fresh creation and no old path is known.
// Name matching can catch unrelated files sharing a substring; callers
// should prefer RewriteReferences whenever the old path is available.
func (r *Rewriter) RewriteByName(oldName, target string) ([]string, error) {
	rules := []rule{
		markdownByName(oldName, EncodePath(oldName)),
		wikiByName(oldName),
	}
	return r.rewrite(rules, vault.RootPath(target))
}

func (r *Rewriter) rewrite(rules []rule, target string) ([]string, error) {
	docs, err := r.store.ListMarkupDocuments()
	if err != nil {
		return nil, err
	}

	encTarget := EncodePath(target)
	var changedDocs []string

	for _, doc := range docs {
		text, err := r.store.Read(doc)
		if err != nil {
			r.logger.Error("failed to read document, skipping", "doc", doc, "error", err)
			continue
		}

		// Changed is signalled by a replacement callback running, not by
		// comparing before/after text.
		changed := false
		for _, rl := range rules {
			text = rl.re.ReplaceAllStringFunc(text, func(m string) string {
				changed = true
				if rl.kind == wikiRule {
					return "![[" + target + "]]"
				}
				alt := ""
				if sub := rl.re.FindStringSubmatch(m); len(sub) > 1 {
					alt = sub[1]
				}
				return "![" + alt + "](" + encTarget + ")"
			})
		}

		if !changed {
			continue
		}

		if err := r.store.Write(doc, text); err != nil {
			r.logger.Error("failed to write document, skipping", "doc", doc, "error", err)
			continue
		}

		changedDocs = append(changedDocs, doc)
		r.logger.Info("updated references", "doc", doc, "target", target)
	}

	return changedDocs, nil
}
