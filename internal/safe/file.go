package safe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the default maximum file size for safe file operations (1MB).
const DefaultMaxFileSize = 1 << 20

// ReadFileOptions configures the behavior of ReadFile.
type ReadFileOptions struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// AllowSymlinks allows reading through a symlink. Default is false.
	AllowSymlinks bool
}

// ReadFile reads a regular file after checking its type and size.
// Symlinks are rejected unless opts allows them.
func ReadFile(path string, opts *ReadFileOptions) ([]byte, error) {
	if opts == nil {
		opts = &ReadFileOptions{}
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	cleanPath := filepath.Clean(path)

	info, err := os.Lstat(cleanPath)
	if err != nil {
		return nil, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return nil, fmt.Errorf("file %q is a symlink", path)
		}
		if info, err = os.Stat(cleanPath); err != nil {
			return nil, err
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file %q exceeds maximum allowed size of %d bytes", path, maxSize)
	}

	// #nosec G304 - path validated above.
	return os.ReadFile(cleanPath)
}
