package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// DefaultCacheRoot returns ~/.svdb/cache, or a directory under the system
// temp dir when no home directory is available.
func DefaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "svdb-cache")
	}
	return filepath.Join(home, ".svdb", "cache")
}

// CachePath returns the directory holding the cache of baseLocation under
// root. Each base location gets its own directory keyed by a short hash of
// its absolute path.
func CachePath(root, baseLocation string) string {
	if abs, err := filepath.Abs(baseLocation); err == nil {
		baseLocation = abs
	}
	return filepath.Join(root, hashString(baseLocation)[:16])
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
