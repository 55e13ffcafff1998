package engine

import (
	"errors"
	"fmt"
)

// HiddenPrefix marks entries discovery skips: originals already removed
// after a transcode leave a marker named with it.
const HiddenPrefix = "."

// ErrQueueFull is returned when a job is enqueued past the queue's capacity.
var ErrQueueFull = errors.New("job queue full")

// TranscodeJob describes one file transcode. It is built once by discovery
// and treated as an immutable value afterwards; workers copy Command before
// extending it.
type TranscodeJob struct {
	// ID identifies the job in the state store. It is the source path, which
	// is unique within one discovery pass.
	ID string

	// Batch is the name of the configured batch the job was discovered in.
	Batch string

	// Command is the fully resolved transcoder invocation, including the
	// preset and the explicit input and output paths.
	Command []string

	// SourcePath is the absolute path of the input file.
	SourcePath string

	// DestinationPath is the absolute path of the expected output file.
	DestinationPath string

	// HiddenMarkerPath is written after a successful run when the original is
	// removed. It sits next to SourcePath, named with HiddenPrefix.
	HiddenMarkerPath string

	// KeepOriginal leaves SourcePath in place after a successful run.
	KeepOriginal bool
}

func (j TranscodeJob) String() string {
	return fmt.Sprintf("%s -> %s", j.SourcePath, j.DestinationPath)
}

// JobChannel is the bounded FIFO queue shared by all workers of a batch.
// Every job sent on it is received by exactly one worker.
type JobChannel chan TranscodeJob

// NewJobChannel creates a queue holding at most capacity jobs.
func NewJobChannel(capacity int) JobChannel {
	return make(JobChannel, capacity)
}

// Enqueue adds a job without blocking. It returns ErrQueueFull when the queue
// is at capacity.
func (q JobChannel) Enqueue(job TranscodeJob) error {
	select {
	case q <- job:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(q))
	}
}

// NewJobQueue builds a queue sized for jobs and fills it in order.
func NewJobQueue(jobs []TranscodeJob) (JobChannel, error) {
	q := NewJobChannel(len(jobs))
	for _, job := range jobs {
		if err := q.Enqueue(job); err != nil {
			return nil, err
		}
	}
	return q, nil
}
