package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize converts a path to forward slashes, whatever separator produced it.
// Archive entries written on Windows frequently carry backslashes.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
}

// Denormalize converts a path from forward slashes to platform-specific separators
func Denormalize(p string) string {
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ValidatePath ensures a path doesn't escape the base directory (path traversal protection)
func ValidatePath(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s", targetPath)
	}

	return absTarget, nil
}
