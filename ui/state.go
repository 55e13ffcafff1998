package ui

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/transcode"
)

// UIState is a snapshot of a running batch.
type UIState struct {
	TotalJobs     int
	Succeeded     int
	Failed        int
	Workers       []WorkerView
	ActiveWorkers int
	MaxWorkers    int
	Elapsed       time.Duration
	Done          bool
	Err           error
}

// Finished returns how many jobs have an outcome.
func (s UIState) Finished() int {
	return s.Succeeded + s.Failed
}

// WorkerView describes what one worker is doing.
type WorkerView struct {
	ID       int
	Variant  transcode.Variant
	File     string
	Size     int64
	LastLine string
	Since    time.Time
	Exited   bool
}

// BatchState collects batch events from engine hooks. Hooks fire on worker
// goroutines, so every access goes through mu.
type BatchState struct {
	mu      sync.Mutex
	state   UIState
	workers map[int]*WorkerView
	started time.Time
	now     func() time.Time
}

// NewBatchState prepares state for a batch of total jobs run by maxWorkers.
func NewBatchState(total, maxWorkers int) *BatchState {
	return &BatchState{
		state:   UIState{TotalJobs: total, MaxWorkers: maxWorkers},
		workers: make(map[int]*WorkerView),
		started: time.Now(),
		now:     time.Now,
	}
}

// Hooks returns engine hooks that feed the state.
func (b *BatchState) Hooks() engine.Hooks {
	return engine.Hooks{
		OnStart: b.jobStarted,
		OnLine:  b.workerLine,
		OnOutcome: b.outcome,
	}
}

// Chain returns hooks that call h first and then the state's own hooks.
func (b *BatchState) Chain(h engine.Hooks) engine.Hooks {
	own := b.Hooks()
	return engine.Hooks{
		OnStart: func(id int, v transcode.Variant, job engine.TranscodeJob) {
			if h.OnStart != nil {
				h.OnStart(id, v, job)
			}
			own.OnStart(id, v, job)
		},
		OnLine: func(id int, line string) {
			if h.OnLine != nil {
				h.OnLine(id, line)
			}
			own.OnLine(id, line)
		},
		OnOutcome: func(o engine.Outcome) {
			if h.OnOutcome != nil {
				h.OnOutcome(o)
			}
			own.OnOutcome(o)
		},
	}
}

func (b *BatchState) worker(id int, variant transcode.Variant) *WorkerView {
	w, ok := b.workers[id]
	if !ok {
		w = &WorkerView{ID: id, Variant: variant}
		b.workers[id] = w
	}
	return w
}

func (b *BatchState) jobStarted(id int, variant transcode.Variant, job engine.TranscodeJob) {
	var size int64
	if info, err := os.Stat(job.SourcePath); err == nil {
		size = info.Size()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.worker(id, variant)
	w.File = job.SourcePath
	w.Size = size
	w.LastLine = ""
	w.Since = b.now()
}

func (b *BatchState) workerLine(id int, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.workers[id]; ok {
		w.LastLine = line
	}
}

func (b *BatchState) outcome(o engine.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.worker(o.WorkerID, o.Variant)
	switch o.Kind {
	case engine.OutcomeSuccess:
		b.state.Succeeded++
		w.File, w.LastLine = "", ""
	case engine.OutcomeFailure:
		b.state.Failed++
		w.File, w.LastLine = "", ""
	case engine.OutcomeWorkerException, engine.OutcomeWorkerTerminated:
		w.Exited = true
		w.File = ""
	}
}

// Finish marks the batch as over.
func (b *BatchState) Finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Done = true
	b.state.Err = err
	b.state.Elapsed = b.now().Sub(b.started)
}

// Snapshot returns a copy of the current state.
func (b *BatchState) Snapshot() UIState {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	if !s.Done {
		s.Elapsed = b.now().Sub(b.started)
	}
	s.Workers = make([]WorkerView, 0, len(b.workers))
	for _, w := range b.workers {
		s.Workers = append(s.Workers, *w)
		if !w.Exited {
			s.ActiveWorkers++
		}
	}
	sort.Slice(s.Workers, func(i, j int) bool { return s.Workers[i].ID < s.Workers[j].ID })
	return s
}
