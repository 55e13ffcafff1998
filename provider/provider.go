package provider

import (
	"context"
	"io"
	"time"
)

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend abstraction. Discovery lists
// source and destination directories through it, workers use it to remove
// originals and drop marker files, and the archiver copies finished outputs
// between two of them.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory. A missing directory
	// is reported with an error matching fs.ErrNotExist. Backends that have
	// symbolic links report them as their targets.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// MkdirAll creates the directory and any missing parents.
	MkdirAll(ctx context.Context, path string) error

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, preserving the modification
	// time from metadata if supported.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)

	// Remove deletes a single file.
	Remove(ctx context.Context, path string) error
}

// IsRegular reports whether info describes a regular file. Backends that
// cannot tell, such as object stores, count every non-directory as regular.
func IsRegular(info FileInfo) bool {
	if r, ok := info.(interface{ Regular() bool }); ok {
		return r.Regular()
	}
	return !info.IsDir()
}
