package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/provider"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var batchNames []string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the files a run would transcode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			batches, err := selectBatches(cfg.EngineBatches(), batchNames)
			if err != nil {
				return err
			}

			local := provider.NewLocalProvider("")
			walker := engine.NewWalker(local, local, cfg.Template())
			_, jobs, err := walker.Walk(cmd.Context(), batches)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Nothing to transcode.")
				return nil
			}

			var total int64
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				var size int64
				if info, err := os.Stat(job.SourcePath); err == nil {
					size = info.Size()
				}
				total += size
				rows = append(rows, []string{
					job.Batch,
					filepath.Base(job.SourcePath),
					shortPath(job.DestinationPath),
					humanize.Bytes(uint64(size)),
					keepLabel(job.KeepOriginal),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Batch", "Source", "Output", "Size", "Original"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d files, %s\n", len(jobs), humanize.Bytes(uint64(total)))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&batchNames, "batch", "b", nil, "Only discover the named batches")
	return cmd
}

func keepLabel(keep bool) string {
	if keep {
		return "keep"
	}
	return "remove"
}
