package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath rejects paths that are empty, contain NUL bytes, or still
// contain parent-directory components after cleaning. Absolute paths are
// allowed; the daemon is routinely pointed at data files outside its
// working directory.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	clean := filepath.Clean(path)
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}
