package main

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/franksops/gotranscode/config"
	"github.com/franksops/gotranscode/logging"
)

type commandContext struct {
	configFlag *string
	v          *viper.Viper

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, v *viper.Viper) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		v:          v,
	}
}

// bind lets a flag override a config key when it is set on the command line.
func (c *commandContext) bind(key string, flag *pflag.Flag) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(c.v, path)
	})
	return c.config, c.configErr
}

// newLogger builds the command logger. quiet keeps entries off the terminal
// while the dashboard owns it.
func (c *commandContext) newLogger(quiet bool) (*logrus.Logger, io.Closer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Quiet:  quiet,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// useTUI resolves the tui setting against the command's output.
func useTUI(mode string, out io.Writer) bool {
	switch mode {
	case config.TUIOn:
		return true
	case config.TUIOff:
		return false
	default:
		return isTerminal(out)
	}
}
