package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/gotranscode/provider"
	"github.com/franksops/gotranscode/transcode"
)

// DefaultStallTimeout is how long the dispatcher waits for any worker event
// before declaring the batch stalled.
const DefaultStallTimeout = time.Hour

var (
	// ErrWorkerException is returned when a worker stops on an unexpected
	// error. It aborts the whole batch.
	ErrWorkerException = errors.New("worker exception")

	// ErrStalled is returned when no worker reported anything within the
	// stall timeout.
	ErrStalled = errors.New("batch stalled")

	// ErrNoWorkers is returned when a non-empty queue is dispatched to zero
	// workers.
	ErrNoWorkers = errors.New("no workers configured")
)

// DispatcherConfig fixes the shape of the worker pool for one batch run.
type DispatcherConfig struct {
	CPUWorkers   int
	GPUWorkers   int
	GPUArgs      []string
	IdleTimeout  time.Duration
	StallTimeout time.Duration

	// FailFast aborts the batch on the first job failure instead of
	// collecting the remaining outcomes.
	FailFast bool
}

// Dispatcher starts a fixed pool of CPU and GPU workers against one queue,
// aggregates their outcomes and decides when the batch is done.
type Dispatcher struct {
	cfg      DispatcherConfig
	runner   transcode.Runner
	files    provider.Provider
	archiver *Archiver
	hooks    Hooks
	logger   logrus.FieldLogger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. files is the provider workers use to
// remove originals and write markers.
func NewDispatcher(cfg DispatcherConfig, runner transcode.Runner, files provider.Provider, logger logrus.FieldLogger) *Dispatcher {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}
	if cfg.GPUArgs == nil {
		cfg.GPUArgs = transcode.DefaultGPUArgs
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		cfg:    cfg,
		runner: runner,
		files:  files,
		logger: logger,
	}
}

// WithArchiver makes every worker archive its successful outputs.
func (d *Dispatcher) WithArchiver(a *Archiver) *Dispatcher {
	d.archiver = a
	return d
}

// WithHooks installs observers for job starts, output lines and outcomes.
func (d *Dispatcher) WithHooks(h Hooks) *Dispatcher {
	d.hooks = h
	return d
}

// WorkerCount returns the number of workers a batch run starts.
func (d *Dispatcher) WorkerCount() int {
	return d.cfg.CPUWorkers + d.cfg.GPUWorkers
}

// Run dispatches the jobs in queue and blocks until every worker has
// terminated, a worker exception aborts the batch, the batch stalls, or ctx
// is cancelled. All workers have exited when Run returns. An empty queue
// returns immediately without starting any worker.
func (d *Dispatcher) Run(ctx context.Context, queue JobChannel) (Summary, error) {
	summary := Summary{Queued: len(queue)}
	if len(queue) == 0 {
		d.logger.Info("nothing to transcode")
		return summary, nil
	}

	total := d.WorkerCount()
	if total <= 0 {
		return summary, ErrNoWorkers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	results := make(ResultChannel, total)
	d.startWorkers(ctx, queue, results)

	stall := time.NewTimer(d.cfg.StallTimeout)
	defer stall.Stop()

	var runErr error
loop:
	for summary.Terminated < total {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop

		case <-stall.C:
			runErr = fmt.Errorf("%w: no worker event for %s", ErrStalled, d.cfg.StallTimeout)
			break loop

		case o := <-results:
			stall.Reset(d.cfg.StallTimeout)
			d.record(&summary, o)

			switch {
			case o.Kind == OutcomeWorkerException:
				runErr = fmt.Errorf("%w: worker %02d: %v", ErrWorkerException, o.WorkerID, o.Err)
				break loop
			case o.Kind == OutcomeFailure && d.cfg.FailFast:
				runErr = fmt.Errorf("%s: %w", o.Job.SourcePath, o.Err)
				break loop
			}
		}
	}

	if runErr != nil {
		d.logger.WithError(runErr).Error("aborting batch")
	}
	cancel()
	d.join(results, &summary)

	summary.Remaining = summary.Queued - summary.Finished() - summary.Exceptions
	summary.Elapsed = time.Since(started)
	return summary, runErr
}

func (d *Dispatcher) startWorkers(ctx context.Context, queue JobChannel, results ResultChannel) {
	for i := 0; i < d.WorkerCount(); i++ {
		variant := transcode.CPU
		if i >= d.cfg.CPUWorkers {
			variant = transcode.GPU
		}
		w := &Worker{
			ID:          i,
			Variant:     variant,
			GPUArgs:     d.cfg.GPUArgs,
			IdleTimeout: d.cfg.IdleTimeout,
			Runner:      d.runner,
			Files:       d.files,
			Archiver:    d.archiver,
			Hooks:       d.hooks,
			Logger:      d.logger,
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Run(ctx, queue, results)
		}()
	}
}

// join waits for every worker to exit, recording the outcomes they still
// send while shutting down.
func (d *Dispatcher) join(results ResultChannel, summary *Summary) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	for {
		select {
		case o := <-results:
			d.record(summary, o)
		case <-done:
			for {
				select {
				case o := <-results:
					d.record(summary, o)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) record(summary *Summary, o Outcome) {
	summary.Add(o)
	d.hooks.outcome(o)

	log := d.logger.WithFields(logrus.Fields{
		"worker":  fmt.Sprintf("%02d", o.WorkerID),
		"variant": o.Variant,
	})
	switch o.Kind {
	case OutcomeSuccess:
		log.WithField("output", o.Job.DestinationPath).Info("done")
	case OutcomeFailure:
		log.WithField("source", o.Job.SourcePath).WithError(o.Err).Warn("failed")
	case OutcomeWorkerTerminated:
		log.Debug("worker exited")
	}
}
