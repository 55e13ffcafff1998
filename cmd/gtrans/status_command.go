package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franksops/gotranscode/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the job history of the latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			st, err := store.NewBoltStore(cfg.StatePath(stateDBFile))
			if err != nil {
				return fmt.Errorf("open job history (is a run in progress?): %w", err)
			}
			defer st.Close()

			records, err := st.ListJobs()
			if err != nil {
				return err
			}
			records = filterRecords(records, runID, all)
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs recorded.")
				return nil
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Batch", "File", "State", "Worker", "Exit", "Source", "Output", "Finished"},
				recordRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Show the given run instead of the latest")
	cmd.Flags().BoolVar(&all, "all", false, "Show every recorded run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many jobs")
	return cmd
}

// filterRecords keeps the records of one run: runID when set, otherwise the
// most recently queued run. records must be ordered newest first.
func filterRecords(records []*store.JobRecord, runID string, all bool) []*store.JobRecord {
	if all || len(records) == 0 {
		return records
	}
	if runID == "" {
		runID = records[0].RunID
	}
	var out []*store.JobRecord
	for _, r := range records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

func recordRows(records []*store.JobRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		worker := "-"
		if r.State != store.StatePending {
			worker = fmt.Sprintf("%02d %s", r.Worker, r.Variant)
		}
		exit := r.ExitStatus
		if exit == "" {
			exit = "-"
		}
		output := "-"
		if r.OutputBytes > 0 {
			output = humanize.Bytes(uint64(r.OutputBytes))
		}
		finished := "-"
		if !r.FinishedAt.IsZero() {
			finished = humanize.Time(r.FinishedAt)
		}
		state := string(r.State)
		if r.Error != "" {
			state += ": " + r.Error
		}
		run := r.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		rows = append(rows, []string{
			run,
			r.Batch,
			filepath.Base(r.SourcePath),
			state,
			worker,
			exit,
			humanize.Bytes(uint64(r.SourceBytes)),
			output,
			finished,
		})
	}
	return rows
}
