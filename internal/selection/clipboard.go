package selection

import (
	"strings"

	"github.com/atotto/clipboard"
)

// mirrorHeader marks clipboard text written by the tracker so unrelated
// clipboard contents are never interpreted as a cut selection.
const mirrorHeader = "vaultmend/cut\n"

// ClipboardMirror publishes the cut selection to the system clipboard.
type ClipboardMirror struct{}

// Publish writes the held paths to the clipboard. An empty selection leaves
// the clipboard untouched.
func (ClipboardMirror) Publish(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return clipboard.WriteAll(mirrorHeader + strings.Join(paths, "\n"))
}

// Fetch reads a selection back from the clipboard. Text not written by
// Publish yields an empty selection.
func (ClipboardMirror) Fetch() ([]string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(text, mirrorHeader) {
		return nil, nil
	}

	var paths []string
	for _, line := range strings.Split(strings.TrimPrefix(text, mirrorHeader), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
