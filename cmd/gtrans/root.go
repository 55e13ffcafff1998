package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag, viper.New())

	rootCmd := &cobra.Command{
		Use:           "gtrans",
		Short:         "Batch transcoder with a CPU/GPU worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ./gtrans.toml)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("state-dir", "", "Directory for the job history and run lock")
	ctx.bind("log_level", flags.Lookup("log-level"))
	ctx.bind("state_dir", flags.Lookup("state-dir"))

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newDiscoverCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
