// Package pathutil resolves data source paths and keeps file-backed sink
// paths inside their data directory.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourcePath checks an operator-supplied source path and returns it in
// absolute, cleaned form. Parent segments are allowed: the operator names the
// file, so only empty paths and NUL bytes are rejected.
func SourcePath(filePath string) (string, error) {
	if strings.TrimSpace(filePath) == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return "", fmt.Errorf("file path contains invalid characters")
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", filePath, err)
	}
	return abs, nil
}

// JoinUnder joins elems onto base and checks the result stays inside base.
// Each element must be a single path segment.
func JoinUnder(base string, elems ...string) (string, error) {
	if base == "" {
		base = "."
	}
	parts := make([]string, 0, len(elems)+1)
	parts = append(parts, base)
	for _, e := range elems {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, "/\\\x00") {
			return "", fmt.Errorf("invalid path segment %q", e)
		}
		parts = append(parts, e)
	}

	joined := filepath.Join(parts...)
	rel, err := filepath.Rel(filepath.Clean(base), joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", joined, base)
	}
	return joined, nil
}
