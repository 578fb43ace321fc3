package shield

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a caller-supplied artifact path escapes
// the configured artifacts directory.
var ErrPathTraversal = errors.New("shield: path traversal detected")

// SafePath validates a caller-supplied screenshot/PDF destination. With an
// empty base any absolute or relative path is accepted as-is (loopback tool
// mode). With a base set, the result is confined under it.
func SafePath(base, userInput string) (string, error) {
	if base == "" {
		return userInput, nil
	}
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if cleaned != filepath.Clean(base) &&
		!strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}
