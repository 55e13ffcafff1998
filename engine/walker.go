package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franksops/gotranscode/provider"
	"github.com/franksops/gotranscode/transcode"
)

// DefaultSuffix is appended to the stem of every transcoded file name.
const DefaultSuffix = "_comp"

// Batch names one source directory whose files are transcoded into one
// destination directory.
type Batch struct {
	Name           string
	SourceDir      string
	DestinationDir string
	Suffix         string
	KeepOriginals  bool
}

// OutputName returns the destination file name for a source file name:
// {stem}{suffix}{extension}.
func OutputName(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + suffix + ext
}

// Walker discovers outstanding work by diffing a source directory against
// its destination directory. Each pass is a fresh snapshot; nothing is
// cached between calls.
type Walker struct {
	SourceProvider      provider.Provider
	DestinationProvider provider.Provider
	Template            transcode.Template
}

// NewWalker creates a walker that lists sources and destinations through
// the given providers and resolves commands from tmpl.
func NewWalker(src, dst provider.Provider, tmpl transcode.Template) *Walker {
	return &Walker{
		SourceProvider:      src,
		DestinationProvider: dst,
		Template:            tmpl,
	}
}

// Discover returns one job for every regular, non-hidden file in the batch's
// source directory (other than the stats file) whose suffixed counterpart is
// missing from the destination
// directory. The destination directory is created if absent; a missing
// source directory yields no jobs. Jobs are ordered by source file name.
func (w *Walker) Discover(ctx context.Context, b Batch) ([]TranscodeJob, error) {
	suffix := b.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}

	if err := w.DestinationProvider.MkdirAll(ctx, b.DestinationDir); err != nil {
		return nil, fmt.Errorf("failed to create destination %s: %w", b.DestinationDir, err)
	}

	sources, err := w.SourceProvider.List(ctx, b.SourceDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list source %s: %w", b.SourceDir, err)
	}

	outputs, err := w.DestinationProvider.List(ctx, b.DestinationDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list destination %s: %w", b.DestinationDir, err)
	}
	done := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		if !out.IsDir() {
			done[out.Name()] = true
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })

	var jobs []TranscodeJob
	for _, entry := range sources {
		name := entry.Name()
		if !provider.IsRegular(entry) || strings.HasPrefix(name, HiddenPrefix) || name == StatsFile {
			continue
		}

		outName := OutputName(name, suffix)
		if done[outName] {
			continue
		}

		src := filepath.Join(b.SourceDir, name)
		dst := filepath.Join(b.DestinationDir, outName)
		jobs = append(jobs, TranscodeJob{
			ID:               src,
			Batch:            b.Name,
			Command:          w.Template.Build(src, dst),
			SourcePath:       src,
			DestinationPath:  dst,
			HiddenMarkerPath: filepath.Join(b.SourceDir, HiddenPrefix+name),
			KeepOriginal:     b.KeepOriginals,
		})
	}
	return jobs, nil
}

// Walk discovers every batch and returns a queue holding all their jobs,
// along with the jobs themselves in enqueue order.
func (w *Walker) Walk(ctx context.Context, batches []Batch) (JobChannel, []TranscodeJob, error) {
	var all []TranscodeJob
	for _, b := range batches {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		jobs, err := w.Discover(ctx, b)
		if err != nil {
			return nil, nil, fmt.Errorf("batch %s: %w", b.Name, err)
		}
		all = append(all, jobs...)
	}

	queue, err := NewJobQueue(all)
	if err != nil {
		return nil, nil, err
	}
	return queue, all, nil
}
