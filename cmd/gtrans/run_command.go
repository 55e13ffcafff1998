package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franksops/gotranscode/config"
	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/provider"
	"github.com/franksops/gotranscode/store"
	"github.com/franksops/gotranscode/transcode"
	"github.com/franksops/gotranscode/ui"
)

// stateDBFile is the job history database inside the state directory.
const stateDBFile = "gtrans.db"

func newRunCommand(ctx *commandContext) *cobra.Command {
	var batchNames []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcode every outstanding file of the configured batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			showTUI := useTUI(cfg.TUI, cmd.OutOrStdout())

			logger, closer, err := ctx.newLogger(showTUI)
			if err != nil {
				return err
			}
			defer closer.Close()

			b := &batchRun{
				cfg:     cfg,
				logger:  logger,
				out:     cmd.OutOrStdout(),
				showTUI: showTUI,
				runner:  transcode.NewExecRunner(),
			}
			return b.run(cmd.Context(), batchNames)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&batchNames, "batch", "b", nil, "Only run the named batches")
	flags.Int("cpu", 0, "Number of CPU workers")
	flags.Int("gpu", 0, "Number of GPU workers")
	flags.Bool("fail-fast", false, "Abort the batch on the first failed job")
	flags.String("tui", "", "Dashboard: auto, on or off")
	ctx.bind("workers.cpu", flags.Lookup("cpu"))
	ctx.bind("workers.gpu", flags.Lookup("gpu"))
	ctx.bind("workers.fail_fast", flags.Lookup("fail-fast"))
	ctx.bind("tui", flags.Lookup("tui"))
	return cmd
}

// batchRun wires one run command: lock, history, discovery, dispatch and
// statistics.
type batchRun struct {
	cfg     *config.Config
	logger  *logrus.Logger
	out     io.Writer
	showTUI bool
	runner  transcode.Runner
}

func (b *batchRun) run(ctx context.Context, names []string) error {
	batches, err := selectBatches(b.cfg.EngineBatches(), names)
	if err != nil {
		return err
	}

	lock, err := store.Lock(b.cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	st, err := store.NewBoltStore(b.cfg.StatePath(stateDBFile))
	if err != nil {
		return err
	}
	defer st.Close()

	local := provider.NewLocalProvider("")
	walker := engine.NewWalker(local, local, b.cfg.Template())
	queue, jobs, err := walker.Walk(ctx, batches)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	b.logger.WithFields(logrus.Fields{"jobs": len(jobs), "batches": len(batches)}).Info("discovery done")
	if len(jobs) == 0 {
		fmt.Fprintln(b.out, "Nothing to transcode.")
		return nil
	}

	for _, batch := range batches {
		b.appendStats(batch.SourceDir, "Downloaded size")
	}

	runID := uuid.NewString()
	tracker := engine.NewJobTracker(st, engine.DefaultCheckpointConfig, runID)
	if err := tracker.InitJobs(jobs); err != nil {
		return err
	}

	dispatcher := engine.NewDispatcher(b.cfg.DispatcherConfig(), b.runner, local, b.logger.WithField("run", runID[:8]))
	if b.cfg.Archive.Target != "" {
		target, err := provider.Open(ctx, b.cfg.Archive.Target)
		if err != nil {
			return fmt.Errorf("archive target: %w", err)
		}
		archiver := engine.NewArchiver(local, target, engine.NewBufferPool(0))
		archiver.Tracker = tracker
		archiver.Checksum = b.cfg.Archive.Checksum
		dispatcher.WithArchiver(archiver)
	}

	hooks := tracker.Hooks(func(err error) {
		b.logger.WithError(err).Warn("job history update failed")
	})

	var summary engine.Summary
	var runErr error
	if b.showTUI {
		state := ui.NewBatchState(len(jobs), dispatcher.WorkerCount())
		dispatcher.WithHooks(state.Chain(hooks))
		summary, runErr = b.runWithDashboard(ctx, dispatcher, queue, state)
	} else {
		dispatcher.WithHooks(hooks)
		summary, runErr = dispatcher.Run(ctx, queue)
	}

	for _, batch := range batches {
		b.appendStats(batch.DestinationDir, "Compressed size")
	}
	b.printSummary(st, runID, summary)

	// Failed jobs keep their sources and are retried by the next run; only an
	// aborted batch is an error.
	if runErr != nil {
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	return nil
}

func (b *batchRun) runWithDashboard(ctx context.Context, d *engine.Dispatcher, queue engine.JobChannel, state *ui.BatchState) (engine.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var summary engine.Summary
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, runErr = d.Run(runCtx, queue)
		state.Finish(runErr)
	}()

	if err := ui.Run(state, cancel, tea.WithAltScreen(), tea.WithContext(ctx)); err != nil {
		b.logger.WithError(err).Warn("dashboard stopped")
	}
	<-done
	return summary, runErr
}

// appendStats records the size of dir in its stats file. Missing directories
// are skipped.
func (b *batchRun) appendStats(dir, label string) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	size, err := engine.DirSize(dir)
	if err == nil {
		err = engine.AppendStats(dir, label, size)
	}
	if err != nil {
		b.logger.WithError(err).WithField("dir", dir).Warn("could not update stats")
		return
	}
	b.logger.WithFields(logrus.Fields{"dir": dir, "size": humanize.Bytes(uint64(size))}).Info(label)
}

func (b *batchRun) printSummary(st store.Store, runID string, s engine.Summary) {
	var in, out int64
	if records, err := st.ListJobs(); err == nil {
		for _, r := range records {
			if r.RunID == runID && r.State == store.StateCompleted {
				in += r.SourceBytes
				out += r.OutputBytes
			}
		}
	}

	fmt.Fprintf(b.out, "Run %s finished in %s\n", runID, s.Elapsed.Round(time.Second))
	fmt.Fprintf(b.out, "  %d succeeded, %d failed, %d not started\n", s.Succeeded, s.Failed, s.Remaining)
	if in > 0 {
		fmt.Fprintf(b.out, "  %s -> %s\n", humanize.Bytes(uint64(in)), humanize.Bytes(uint64(out)))
	}
}

func selectBatches(all []engine.Batch, names []string) ([]engine.Batch, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("no batches configured; add a [[batches]] section to %s", config.DefaultConfigFile)
	}
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]engine.Batch, len(all))
	for _, b := range all {
		byName[b.Name] = b
	}
	selected := make([]engine.Batch, 0, len(names))
	for _, name := range names {
		b, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown batch %q", name)
		}
		selected = append(selected, b)
	}
	return selected, nil
}

func shortPath(path string) string {
	return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
}
