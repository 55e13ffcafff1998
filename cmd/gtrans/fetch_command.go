package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/franksops/gotranscode/download"
	"github.com/franksops/gotranscode/engine"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Download source files before a run",
		Long: "Download every [[downloads]] entry of the configuration, plus any URLs " +
			"given as arguments into --dir. Files that already exist, or whose " +
			"originals were removed after a transcode, are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			reqs := cfg.DownloadRequests()
			extra, err := argRequests(args, dir)
			if err != nil {
				return err
			}
			reqs = append(reqs, extra...)

			out := cmd.OutOrStdout()
			if len(reqs) == 0 {
				fmt.Fprintln(out, "Nothing to download.")
				return nil
			}

			logger, closer, err := ctx.newLogger(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			fetcher := download.NewHTTPFetcher(cfg.Download.UserAgent, engine.NewBufferPool(0))
			fetcher.Logger = logger

			opts := cfg.DownloadOptions()
			opts.Logger = logger
			if opts.Concurrency == 1 && isTerminal(cmd.ErrOrStderr()) {
				fetcher.Progress = func(req download.Request, size int64) io.Writer {
					return progressbar.DefaultBytes(size, filepath.Base(req.Path))
				}
			}

			report, err := download.FetchAll(cmd.Context(), fetcher, reqs, opts)
			fmt.Fprintf(out, "Downloaded %d files (%s), %d already present\n",
				report.Downloaded, humanize.Bytes(uint64(report.Bytes)), report.Skipped)
			if err != nil {
				return err
			}

			for _, res := range report.Failed {
				fmt.Fprintf(out, "  failed: %s: %v\n", res.Request.URL, res.Err)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d downloads failed after %d attempts", len(report.Failed), opts.Attempts)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory for URLs given as arguments")
	return cmd
}

// argRequests turns command line URLs into requests that store each file
// under dir with the last path element of its URL.
func argRequests(args []string, dir string) ([]download.Request, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("--dir is required when URLs are given")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	reqs := make([]download.Request, 0, len(args))
	for _, raw := range args {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("not an http(s) URL: %q", raw)
		}
		name := path.Base(u.Path)
		if name == "/" || name == "." {
			return nil, fmt.Errorf("URL %q has no file name", raw)
		}
		reqs = append(reqs, download.Request{URL: raw, Path: filepath.Join(abs, name)})
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return reqs, nil
}
