package download

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Options controls FetchAll.
type Options struct {
	// Attempts is the number of rounds a request gets before it is given up.
	Attempts int

	// Concurrency bounds the number of downloads in flight.
	Concurrency int

	// Backoff is the pause between rounds.
	Backoff time.Duration

	Logger logrus.FieldLogger
}

// Report summarizes a FetchAll call.
type Report struct {
	Downloaded int
	Skipped    int
	Bytes      int64

	// Failed holds the last Retryable result of every request that ran out
	// of attempts.
	Failed []Result
}

// FetchAll downloads every request, re-queueing Retryable results for up to
// opts.Attempts rounds. It stops early when ctx is cancelled.
func FetchAll(ctx context.Context, f Fetcher, reqs []Request, opts Options) (Report, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var report Report
	pending := reqs
	for attempt := 1; attempt <= opts.Attempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			log.WithFields(logrus.Fields{"attempt": attempt, "pending": len(pending)}).Info("retrying downloads")
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}

		p := pool.NewWithResults[Result]().WithMaxGoroutines(opts.Concurrency)
		for _, req := range pending {
			p.Go(func() Result {
				if err := ctx.Err(); err != nil {
					return Result{Kind: Retryable, Request: req, Err: err}
				}
				return f.Fetch(ctx, req)
			})
		}

		var retry []Request
		report.Failed = report.Failed[:0]
		for _, res := range p.Wait() {
			switch {
			case res.Kind == Success && res.Skipped:
				report.Skipped++
			case res.Kind == Success:
				report.Downloaded++
				report.Bytes += res.Bytes
			default:
				retry = append(retry, res.Request)
				report.Failed = append(report.Failed, res)
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pending = retry
	}
	return report, nil
}
