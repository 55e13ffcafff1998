package config

import (
	"github.com/spf13/viper"

	"github.com/franksops/gotranscode/download"
	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/transcode"
)

// DefaultDestinationSuffix names a batch's destination directory when none is
// configured: <source_dir>_compressed.
const DefaultDestinationSuffix = "_compressed"

// TUI modes.
const (
	TUIAuto = "auto"
	TUIOn   = "on"
	TUIOff  = "off"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:  "~/.local/state/gtrans",
		LogLevel:  "info",
		LogFormat: "text",
		TUI:       TUIAuto,
		Workers: Workers{
			CPU:                 1,
			GPU:                 0,
			IdleTimeoutSeconds:  int(engine.DefaultIdleTimeout.Seconds()),
			StallTimeoutSeconds: int(engine.DefaultStallTimeout.Seconds()),
		},
		Transcode: Transcode{
			Binary:  transcode.DefaultBinary,
			Args:    append([]string(nil), transcode.DefaultArgs...),
			GPUArgs: append([]string(nil), transcode.DefaultGPUArgs...),
		},
		Download: Download{
			Attempts:       3,
			Concurrency:    1,
			BackoffSeconds: 5,
			UserAgent:      download.DefaultUserAgent,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("tui", d.TUI)

	v.SetDefault("workers.cpu", d.Workers.CPU)
	v.SetDefault("workers.gpu", d.Workers.GPU)
	v.SetDefault("workers.idle_timeout_seconds", d.Workers.IdleTimeoutSeconds)
	v.SetDefault("workers.stall_timeout_seconds", d.Workers.StallTimeoutSeconds)
	v.SetDefault("workers.fail_fast", d.Workers.FailFast)

	v.SetDefault("transcode.binary", d.Transcode.Binary)
	v.SetDefault("transcode.args", d.Transcode.Args)
	v.SetDefault("transcode.gpu_args", d.Transcode.GPUArgs)

	v.SetDefault("archive.target", d.Archive.Target)
	v.SetDefault("archive.checksum", d.Archive.Checksum)

	v.SetDefault("download.attempts", d.Download.Attempts)
	v.SetDefault("download.concurrency", d.Download.Concurrency)
	v.SetDefault("download.backoff_seconds", d.Download.BackoffSeconds)
	v.SetDefault("download.user_agent", d.Download.UserAgent)
}
