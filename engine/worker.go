package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/gotranscode/provider"
	"github.com/franksops/gotranscode/transcode"
)

// DefaultIdleTimeout is how long a worker waits on an empty queue before it
// terminates.
const DefaultIdleTimeout = 60 * time.Second

// ErrJobFailed marks a job the transcoder did not complete.
var ErrJobFailed = errors.New("transcode failed")

// Worker pulls jobs from a shared queue, runs the transcoder for each and
// reports one outcome per job, plus a final one when it stops.
type Worker struct {
	ID      int
	Variant transcode.Variant

	// GPUArgs are appended to every command when Variant is transcode.GPU.
	GPUArgs []string

	// IdleTimeout is how long the queue must stay empty before the worker
	// terminates itself.
	IdleTimeout time.Duration

	Runner transcode.Runner

	// Files removes originals and writes hidden markers.
	Files provider.Provider

	// Archiver, when set, copies every successful output to the archive.
	Archiver *Archiver

	Hooks  Hooks
	Logger logrus.FieldLogger
}

func (w *Worker) log() logrus.FieldLogger {
	l := w.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithFields(logrus.Fields{
		"worker":  fmt.Sprintf("%02d", w.ID),
		"variant": w.Variant,
	})
}

// Run processes jobs until the queue has been empty for IdleTimeout, the
// context is cancelled, or an unexpected error occurs. It always sends
// exactly one OutcomeWorkerTerminated or OutcomeWorkerException last.
// A closed queue does not end the worker early.
func (w *Worker) Run(ctx context.Context, jobs <-chan TranscodeJob, results chan<- Outcome) {
	log := w.log()
	idleTimeout := w.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	log.Debug("worker started")
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			results <- w.terminated()
			return

		case <-idle.C:
			log.WithField("idle", idleTimeout).Info("worker terminated")
			results <- w.terminated()
			return

		case job, ok := <-jobs:
			if !ok {
				// Let the idle timer decide when to stop.
				jobs = nil
				continue
			}
			idle.Stop()
			if ctx.Err() != nil {
				// Cancelled while dequeueing; the job never ran.
				log.WithField("source", job.SourcePath).Debug("dropping job after cancel")
				results <- w.terminated()
				return
			}

			outcome, err := w.process(ctx, job)
			if err != nil {
				if ctx.Err() != nil {
					outcome.Kind = OutcomeFailure
					outcome.Err = fmt.Errorf("%w: interrupted: %v", ErrJobFailed, err)
					results <- outcome
					log.Info("worker stopped")
					results <- w.terminated()
					return
				}
				log.WithError(err).WithField("source", job.SourcePath).Error("worker exception")
				results <- Outcome{
					Kind:     OutcomeWorkerException,
					WorkerID: w.ID,
					Variant:  w.Variant,
					Job:      job,
					Err:      err,
				}
				return
			}

			results <- outcome
			idle.Reset(idleTimeout)
		}
	}
}

func (w *Worker) terminated() Outcome {
	return Outcome{Kind: OutcomeWorkerTerminated, WorkerID: w.ID, Variant: w.Variant}
}

// process runs one job. A non-nil error is a worker exception unless ctx is
// done, in which case the job was interrupted.
func (w *Worker) process(ctx context.Context, job TranscodeJob) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	log := w.log().WithField("source", job.SourcePath)
	started := time.Now()
	outcome = Outcome{WorkerID: w.ID, Variant: w.Variant, Job: job}

	command := transcode.ForVariant(job.Command, w.Variant, w.GPUArgs)
	w.Hooks.start(w.ID, w.Variant, job)
	log.WithField("command", transcode.String(command)).Info("transcoding")

	status, err := w.Runner.Run(ctx, command, func(line string) {
		log.Debug(line)
		w.Hooks.line(w.ID, line)
	})
	outcome.Status = status
	outcome.Elapsed = time.Since(started)
	if err != nil {
		return outcome, fmt.Errorf("run transcoder: %w", err)
	}

	if failure := w.verify(ctx, job, status); failure != nil {
		log.WithField("status", status).WithError(failure).Warn("transcode failed")
		outcome.Kind = OutcomeFailure
		outcome.Err = failure
		return outcome, nil
	}

	if w.Archiver != nil {
		if _, err := w.Archiver.Archive(ctx, job); err != nil {
			log.WithError(err).Warn("archive failed")
			// Drop the output so the next discovery pass queues the file again.
			if rmErr := w.Files.Remove(ctx, job.DestinationPath); rmErr != nil {
				log.WithError(rmErr).Warn("could not remove unarchived output")
			}
			outcome.Kind = OutcomeFailure
			outcome.Err = fmt.Errorf("archive: %w", err)
			return outcome, nil
		}
	}

	if !job.KeepOriginal {
		if err := w.removeOriginal(ctx, job); err != nil {
			return outcome, err
		}
	}

	outcome.Kind = OutcomeSuccess
	outcome.Elapsed = time.Since(started)
	log.WithField("status", status).WithField("elapsed", outcome.Elapsed.Round(time.Second)).Info("transcode done")
	return outcome, nil
}

// verify decides whether a finished run counts as a success. An explicit
// non-zero status fails the job. Some encoder paths report no status even on
// success, so an unknown status passes as long as the output exists.
func (w *Worker) verify(ctx context.Context, job TranscodeJob, status transcode.ExitStatus) error {
	if status.Failed() {
		return fmt.Errorf("%w: exit status %d", ErrJobFailed, status.Code)
	}
	if status.Known {
		return nil
	}
	if _, err := w.Files.Stat(ctx, job.DestinationPath); err != nil {
		return fmt.Errorf("%w: no exit status and no output: %v", ErrJobFailed, err)
	}
	return nil
}

// removeOriginal deletes the source and records the deletion with the hidden
// marker. It only runs after a confirmed success and, when archiving is on, a
// completed archive copy.
func (w *Worker) removeOriginal(ctx context.Context, job TranscodeJob) error {
	if err := w.Files.Remove(ctx, job.SourcePath); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}

	marker, err := w.Files.OpenWrite(ctx, job.HiddenMarkerPath, nil)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	note := fmt.Sprintf("%02d: original removed after transcode to %s\n", w.ID, job.DestinationPath)
	if _, err := io.WriteString(marker, note); err != nil {
		marker.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := marker.Close(); err != nil {
		return fmt.Errorf("close marker: %w", err)
	}
	return nil
}
