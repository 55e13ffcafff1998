package engine

import (
	"time"

	"github.com/franksops/gotranscode/transcode"
)

// OutcomeKind tags the variants of Outcome.
type OutcomeKind int

const (
	// OutcomeSuccess reports a job whose transcode completed.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailure reports a job the transcoder explicitly failed, or whose
	// output could not be archived.
	OutcomeFailure
	// OutcomeWorkerException reports a worker that hit an unexpected error and
	// stopped taking work.
	OutcomeWorkerException
	// OutcomeWorkerTerminated reports a worker that exited, normally after
	// staying idle for its idle timeout.
	OutcomeWorkerTerminated
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeWorkerException:
		return "exception"
	case OutcomeWorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Outcome is sent by a worker for every finished job and once more when the
// worker stops. The dispatcher consumes each outcome exactly once.
type Outcome struct {
	Kind     OutcomeKind
	WorkerID int
	Variant  transcode.Variant

	// Job and Status are set for OutcomeSuccess and OutcomeFailure.
	Job    TranscodeJob
	Status transcode.ExitStatus

	// Err carries the failure reason or the worker exception.
	Err error

	Elapsed time.Duration
}

// ResultChannel carries outcomes from all workers to the dispatcher.
type ResultChannel chan Outcome

// Hooks observe a running batch. Any field may be nil. OnStart and OnLine run
// on worker goroutines; OnOutcome runs on the dispatcher goroutine.
type Hooks struct {
	OnStart   func(workerID int, variant transcode.Variant, job TranscodeJob)
	OnLine    func(workerID int, line string)
	OnOutcome func(o Outcome)
}

func (h Hooks) start(workerID int, variant transcode.Variant, job TranscodeJob) {
	if h.OnStart != nil {
		h.OnStart(workerID, variant, job)
	}
}

func (h Hooks) line(workerID int, line string) {
	if h.OnLine != nil {
		h.OnLine(workerID, line)
	}
}

func (h Hooks) outcome(o Outcome) {
	if h.OnOutcome != nil {
		h.OnOutcome(o)
	}
}
