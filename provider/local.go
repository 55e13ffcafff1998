package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

type localFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
	mode    os.FileMode
	regular bool
}

func (l *localFileInfo) Name() string       { return l.name }
func (l *localFileInfo) Size() int64        { return l.size }
func (l *localFileInfo) IsDir() bool        { return l.isDir }
func (l *localFileInfo) ModTime() time.Time { return l.modTime }
func (l *localFileInfo) Mode() os.FileMode  { return l.mode }
func (l *localFileInfo) Regular() bool      { return l.regular }

// modeInfo is satisfied by local file infos that carry permission bits.
type modeInfo interface {
	Mode() os.FileMode
}

// WrapOSFileInfo converts an os.FileInfo into a provider FileInfo. Irregular
// entries are kept; callers filter with IsRegular.
func WrapOSFileInfo(info os.FileInfo) FileInfo {
	return &localFileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
		mode:    info.Mode().Perm(),
		regular: info.Mode().IsRegular(),
	}
}

// LocalProvider implements the Provider interface for posix-compliant local filesystems.
type LocalProvider struct {
	basePath string
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{basePath: basePath}
}

func (p *LocalProvider) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean(path))
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, err
	}
	return WrapOSFileInfo(info), nil
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Stat(filepath.Join(p.resolve(path), entry.Name()))
			if err != nil {
				continue // dangling link
			}
			wrapped := WrapOSFileInfo(target).(*localFileInfo)
			wrapped.name = entry.Name()
			infos = append(infos, wrapped)
			continue
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) MkdirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(p.resolve(path), 0755)
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(p.resolve(path))
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	mode := os.FileMode(0644)
	if m, ok := metadata.(modeInfo); ok && m.Mode() != 0 {
		mode = m.Mode()
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}

	return &localWriteCloser{
		File:     file,
		fullPath: fullPath,
		metadata: metadata,
	}, nil
}

func (p *LocalProvider) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Remove(p.resolve(path))
}

// localWriteCloser restores the source modification time on close, since
// writing the file bumps its mtime.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}

	if l.metadata != nil && !l.metadata.ModTime().IsZero() {
		// Ignore errors on applying timestamp
		_ = os.Chtimes(l.fullPath, time.Now(), l.metadata.ModTime())
	}
	return nil
}
