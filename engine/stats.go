package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// StatsFile is the name of the per-directory size log.
const StatsFile = "stats.txt"

// Summary aggregates the outcomes of one batch run.
type Summary struct {
	Queued     int
	Succeeded  int
	Failed     int
	Exceptions int
	Terminated int

	// Remaining counts jobs that never ran, including any a worker dequeued
	// after the batch was cancelled.
	Remaining int
	Elapsed   time.Duration
}

// Add folds one outcome into the summary.
func (s *Summary) Add(o Outcome) {
	switch o.Kind {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeFailure:
		s.Failed++
	case OutcomeWorkerException:
		s.Exceptions++
	case OutcomeWorkerTerminated:
		s.Terminated++
	}
}

// Finished returns how many jobs reached a success or failure outcome.
func (s Summary) Finished() int {
	return s.Succeeded + s.Failed
}

// DirSize returns the total size of all regular files below root. A missing
// root has size zero.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // removed while walking
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// AppendStats appends "label: size" to the stats file in dir, creating the
// file when needed.
func AppendStats(dir, label string, size int64) error {
	f, err := os.OpenFile(filepath.Join(dir, StatsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s: %d\n", label, size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
