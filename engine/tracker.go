package engine

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/franksops/gotranscode/store"
	"github.com/franksops/gotranscode/transcode"
)

// CheckpointConfig defines when archive progress is written to the store.
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been copied.
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed.
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 64 * 1024 * 1024,
	TimeInterval:  5 * time.Second,
}

// JobTracker records the lifecycle of every job of one run in a store.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
	runID  string
	now    func() time.Time

	// mu serializes read-modify-write cycles on records.
	mu sync.Mutex
}

// NewJobTracker creates a tracker that stamps records with runID.
func NewJobTracker(s store.Store, config CheckpointConfig, runID string) *JobTracker {
	return &JobTracker{
		store:  s,
		config: config,
		runID:  runID,
		now:    time.Now,
	}
}

// RunID returns the identifier stamped on every record of this run.
func (jt *JobTracker) RunID() string {
	return jt.runID
}

// InitJobs stores a pending record for every discovered job.
func (jt *JobTracker) InitJobs(jobs []TranscodeJob) error {
	queued := jt.now()
	for _, job := range jobs {
		record := &store.JobRecord{
			ID:              job.ID,
			RunID:           jt.runID,
			Batch:           job.Batch,
			SourcePath:      job.SourcePath,
			DestinationPath: job.DestinationPath,
			State:           store.StatePending,
			SourceBytes:     fileSize(job.SourcePath),
			QueuedAt:        queued,
		}
		if err := jt.store.SaveJob(record); err != nil {
			return fmt.Errorf("init job %s: %w", job.ID, err)
		}
	}
	return nil
}

// MarkInProgress records which worker picked up a job.
func (jt *JobTracker) MarkInProgress(jobID string, workerID int, variant transcode.Variant) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
		r.Worker = workerID
		r.Variant = string(variant)
		r.StartedAt = jt.now()
	})
}

// MarkCompleted records a successful transcode.
func (jt *JobTracker) MarkCompleted(jobID string, status transcode.ExitStatus) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.ExitStatus = status.String()
		r.OutputBytes = fileSize(r.DestinationPath)
		r.Error = ""
		r.FinishedAt = jt.now()
	})
}

// MarkFailed records a failed job with its reason.
func (jt *JobTracker) MarkFailed(jobID string, status transcode.ExitStatus, err error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		r.ExitStatus = status.String()
		if err != nil {
			r.Error = err.Error()
		}
		r.FinishedAt = jt.now()
	})
}

// RecordArchive stores the size and checksum of an archived output.
func (jt *JobTracker) RecordArchive(jobID string, bytes int64, checksum uint64) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.ArchivedBytes = bytes
		if checksum != 0 {
			r.ArchiveChecksum = fmt.Sprintf("%016x", checksum)
		}
	})
}

// Hooks returns batch hooks that keep the store in sync with the run.
// Store errors are reported through onErr, which may be nil.
func (jt *JobTracker) Hooks(onErr func(error)) Hooks {
	report := func(err error) {
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
	return Hooks{
		OnStart: func(workerID int, variant transcode.Variant, job TranscodeJob) {
			report(jt.MarkInProgress(job.ID, workerID, variant))
		},
		OnOutcome: func(o Outcome) {
			switch o.Kind {
			case OutcomeSuccess:
				report(jt.MarkCompleted(o.Job.ID, o.Status))
			case OutcomeFailure:
				report(jt.MarkFailed(o.Job.ID, o.Status, o.Err))
			case OutcomeWorkerException:
				if o.Job.ID != "" {
					report(jt.MarkFailed(o.Job.ID, o.Status, o.Err))
				}
			}
		},
	}
}

func (jt *JobTracker) update(jobID string, apply func(*store.JobRecord)) error {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	apply(record)
	return jt.store.SaveJob(record)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint
// archive progress.
type TrackedWriter struct {
	io.Writer
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID string) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		jobID:           jobID,
		lastCheckpointT: jt.now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		tw.mu.Lock()
		tw.bytesWritten += int64(n)
		due := tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval ||
			tw.tracker.now().Sub(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval
		current := tw.bytesWritten
		tw.mu.Unlock()

		if due {
			tw.checkpoint(current)
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint(bytes int64) {
	// A failed checkpoint must not fail the copy.
	err := tw.tracker.update(tw.jobID, func(r *store.JobRecord) {
		r.ArchivedBytes = bytes
	})
	if err != nil {
		return
	}

	tw.mu.Lock()
	tw.lastCheckpoint = bytes
	tw.lastCheckpointT = tw.tracker.now()
	tw.mu.Unlock()
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten
}
