package vault

import (
	"errors"
	"fmt"
)

// maxUniqueAttempts bounds collision probing so a pathological exists
// function cannot loop forever.
const maxUniqueAttempts = 10000

// ErrDestinationExhausted is returned when no collision-free path could be
// found within the attempt bound.
var ErrDestinationExhausted = errors.New("no collision-free destination path found")

// UniquePath returns the first path for which exists reports false, starting
// from desired and appending an incrementing counter before the extension:
// "base.png" → "base 1.png" → "base 2.png" → ...
//
// An empty folder means the vault root. The returned path is normalized.
func UniquePath(desired, baseName, ext, folder string, exists func(string) bool) (string, error) {
	candidate := NormalizePath(desired)

	for attempt := 1; exists(candidate); attempt++ {
		if attempt > maxUniqueAttempts {
			return "", fmt.Errorf("%w: %s", ErrDestinationExhausted, desired)
		}

		name := fmt.Sprintf("%s %d", baseName, attempt)
		if ext != "" {
			name += "." + ext
		}
		if folder == "" {
			candidate = NormalizePath(name)
		} else {
			candidate = NormalizePath(folder + "/" + name)
		}
	}

	return candidate, nil
}
