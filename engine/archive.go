package engine

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/franksops/gotranscode/provider"
)

// ArchiveResult describes one archived output.
type ArchiveResult struct {
	Key      string
	Bytes    int64
	Checksum uint64
}

// Archiver copies finished outputs from the local destination directory to
// an archive provider, such as an S3 bucket. Objects are stored as
// <batch>/<output file name>.
type Archiver struct {
	Source  provider.Provider
	Target  provider.Provider
	Buffers *BufferPool

	// Tracker, when set, receives progress checkpoints and the final size and
	// checksum of every archived output.
	Tracker *JobTracker

	// Checksum computes a CRC64 of every archived output.
	Checksum bool
}

// NewArchiver creates an archiver that reads outputs through src and writes
// them to target.
func NewArchiver(src, target provider.Provider, buffers *BufferPool) *Archiver {
	if buffers == nil {
		buffers = NewBufferPool(0)
	}
	return &Archiver{Source: src, Target: target, Buffers: buffers}
}

// Key returns the archive key for a job's output.
func (a *Archiver) Key(job TranscodeJob) string {
	return path.Join(job.Batch, filepath.Base(job.DestinationPath))
}

// Archive copies the job's output to the archive target.
func (a *Archiver) Archive(ctx context.Context, job TranscodeJob) (ArchiveResult, error) {
	result := ArchiveResult{Key: a.Key(job)}

	info, err := a.Source.Stat(ctx, job.DestinationPath)
	if err != nil {
		return result, fmt.Errorf("failed to stat output: %w", err)
	}

	src, err := a.Source.OpenRead(ctx, job.DestinationPath)
	if err != nil {
		return result, fmt.Errorf("failed to open output: %w", err)
	}
	defer src.Close()

	var reader io.Reader = src
	var sum *ChecksumReader
	if a.Checksum {
		sum = NewChecksumReader(src)
		reader = sum
	}

	dst, err := a.Target.OpenWrite(ctx, result.Key, info)
	if err != nil {
		return result, fmt.Errorf("failed to open archive target: %w", err)
	}

	var writer io.Writer = dst
	if a.Tracker != nil {
		writer = a.Tracker.NewTrackedWriter(dst, job.ID)
	}

	buf := a.Buffers.Get()
	defer a.Buffers.Put(buf)

	result.Bytes, err = io.CopyBuffer(writer, reader, *buf)
	if err != nil {
		dst.Close()
		return result, fmt.Errorf("copy failed: %w", err)
	}

	if err := dst.Close(); err != nil {
		return result, fmt.Errorf("failed to finish archive target: %w", err)
	}

	if result.Bytes != info.Size() {
		return result, fmt.Errorf("short copy: %d of %d bytes", result.Bytes, info.Size())
	}

	if sum != nil {
		result.Checksum = sum.Checksum()
	}

	if a.Tracker != nil {
		if err := a.Tracker.RecordArchive(job.ID, result.Bytes, result.Checksum); err != nil {
			return result, fmt.Errorf("record archive: %w", err)
		}
	}
	return result, nil
}
