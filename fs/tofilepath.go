package fs

import (
	"path/filepath"

	"github.com/sharedcode/cascade"
)

// ToFilePathFunc formats a base path and CAS key into a directory path
// optimized for I/O locality.
type ToFilePathFunc func(basePath string, key cascade.Key) string

// DefaultToFilePath formats a path as basePath/cas/sha256/<hex[0:2]> to bound
// per-directory file counts on large datasets.
func DefaultToFilePath(basePath string, key cascade.Key) string {
	h := key.Hex()
	return filepath.Join(basePath, "cas", "sha256", h[0:2])
}
