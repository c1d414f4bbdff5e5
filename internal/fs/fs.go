// Package fs is the seam between the index and the host file system.
package fs

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// Provider is the file-system contract the preprocessor and index consume.
type Provider interface {
	// Exists reports whether path names a regular file.
	Exists(path string) bool

	Open(path string) (io.ReadCloser, error)

	// LastModified returns the modification time, or an error if the file
	// cannot be stat'ed.
	LastModified(path string) (time.Time, error)

	// ResolvePath makes path absolute and clean. Relative paths are taken
	// relative to base.
	ResolvePath(path, base string) string
}

// OS implements Provider on the local file system.
type OS struct{}

// NewOS returns the local file-system provider.
func NewOS() *OS {
	return &OS{}
}

func (OS) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (OS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OS) LastModified(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (OS) ResolvePath(path, base string) string {
	path = ExpandHome(path)
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || (len(path) > 1 && path[0] == '~' && path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
