package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/franksops/gotranscode/download"
	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/transcode"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override, e.g. GTRANS_WORKERS_CPU.
const EnvPrefix = "GTRANS"

// DefaultConfigFile is looked up in the working directory when no --config
// flag is given.
const DefaultConfigFile = "gtrans.toml"

// Workers sizes the worker pool.
type Workers struct {
	CPU                 int  `mapstructure:"cpu" toml:"cpu"`
	GPU                 int  `mapstructure:"gpu" toml:"gpu"`
	IdleTimeoutSeconds  int  `mapstructure:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	StallTimeoutSeconds int  `mapstructure:"stall_timeout_seconds" toml:"stall_timeout_seconds"`
	FailFast            bool `mapstructure:"fail_fast" toml:"fail_fast"`
}

// Transcode holds the command template shared by every batch.
type Transcode struct {
	Binary  string   `mapstructure:"binary" toml:"binary"`
	Args    []string `mapstructure:"args" toml:"args"`
	GPUArgs []string `mapstructure:"gpu_args" toml:"gpu_args"`
}

// Archive configures copying finished outputs elsewhere. An empty target
// disables archiving.
type Archive struct {
	Target   string `mapstructure:"target" toml:"target"`
	Checksum bool   `mapstructure:"checksum" toml:"checksum"`
}

// Batch is one source directory to transcode.
type Batch struct {
	Name           string `mapstructure:"name" toml:"name"`
	SourceDir      string `mapstructure:"source_dir" toml:"source_dir"`
	DestinationDir string `mapstructure:"destination_dir" toml:"destination_dir,omitempty"`
	Suffix         string `mapstructure:"suffix" toml:"suffix,omitempty"`
	KeepOriginals  bool   `mapstructure:"keep_originals" toml:"keep_originals"`
}

// Download tunes the fetch command.
type Download struct {
	Attempts       int    `mapstructure:"attempts" toml:"attempts"`
	Concurrency    int    `mapstructure:"concurrency" toml:"concurrency"`
	BackoffSeconds int    `mapstructure:"backoff_seconds" toml:"backoff_seconds"`
	UserAgent      string `mapstructure:"user_agent" toml:"user_agent"`
}

// DownloadTarget is one file to fetch.
type DownloadTarget struct {
	URL  string `mapstructure:"url" toml:"url"`
	Path string `mapstructure:"path" toml:"path"`
}

// Config is the effective gtrans configuration.
type Config struct {
	StateDir  string `mapstructure:"state_dir" toml:"state_dir"`
	LogLevel  string `mapstructure:"log_level" toml:"log_level"`
	LogFormat string `mapstructure:"log_format" toml:"log_format"`
	LogFile   string `mapstructure:"log_file" toml:"log_file,omitempty"`
	TUI       string `mapstructure:"tui" toml:"tui"`

	Workers   Workers          `mapstructure:"workers" toml:"workers"`
	Transcode Transcode        `mapstructure:"transcode" toml:"transcode"`
	Archive   Archive          `mapstructure:"archive" toml:"archive"`
	Download  Download         `mapstructure:"download" toml:"download"`
	Batches   []Batch          `mapstructure:"batches" toml:"batches"`
	Downloads []DownloadTarget `mapstructure:"downloads" toml:"downloads"`
}

// Load reads the configuration through v. An explicit path must exist; without
// one, gtrans.toml in the working directory is used when present and the
// defaults otherwise. Environment variables override file values, and flags
// bound to v override both.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, filepath.Ext(DefaultConfigFile)))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expands paths and fills per-batch defaults.
func (c *Config) normalize() error {
	var err error
	if c.StateDir, err = expandPath(c.StateDir); err != nil {
		return err
	}
	if c.LogFile, err = expandPath(c.LogFile); err != nil {
		return err
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.TUI = strings.ToLower(strings.TrimSpace(c.TUI))

	for i := range c.Batches {
		b := &c.Batches[i]
		if b.SourceDir == "" {
			continue
		}
		if b.SourceDir, err = expandPath(b.SourceDir); err != nil {
			return err
		}
		if b.DestinationDir == "" {
			b.DestinationDir = b.SourceDir + DefaultDestinationSuffix
		} else if b.DestinationDir, err = expandPath(b.DestinationDir); err != nil {
			return err
		}
		if b.Suffix == "" {
			b.Suffix = engine.DefaultSuffix
		}
		if b.Name == "" {
			b.Name = filepath.Base(b.SourceDir)
		}
	}

	for i := range c.Downloads {
		if c.Downloads[i].Path, err = expandPath(c.Downloads[i].Path); err != nil {
			return err
		}
	}
	return nil
}

// EngineBatches converts the configured batches for the walker.
func (c *Config) EngineBatches() []engine.Batch {
	batches := make([]engine.Batch, 0, len(c.Batches))
	for _, b := range c.Batches {
		batches = append(batches, engine.Batch{
			Name:           b.Name,
			SourceDir:      b.SourceDir,
			DestinationDir: b.DestinationDir,
			Suffix:         b.Suffix,
			KeepOriginals:  b.KeepOriginals,
		})
	}
	return batches
}

// Template returns the transcoder command template.
func (c *Config) Template() transcode.Template {
	return transcode.Template{Binary: c.Transcode.Binary, Args: c.Transcode.Args}
}

// DispatcherConfig returns the worker pool settings.
func (c *Config) DispatcherConfig() engine.DispatcherConfig {
	return engine.DispatcherConfig{
		CPUWorkers:   c.Workers.CPU,
		GPUWorkers:   c.Workers.GPU,
		GPUArgs:      c.Transcode.GPUArgs,
		IdleTimeout:  time.Duration(c.Workers.IdleTimeoutSeconds) * time.Second,
		StallTimeout: time.Duration(c.Workers.StallTimeoutSeconds) * time.Second,
		FailFast:     c.Workers.FailFast,
	}
}

// DownloadRequests returns the configured downloads.
func (c *Config) DownloadRequests() []download.Request {
	reqs := make([]download.Request, 0, len(c.Downloads))
	for _, d := range c.Downloads {
		reqs = append(reqs, download.Request{URL: d.URL, Path: d.Path})
	}
	return reqs
}

// DownloadOptions returns the retry and concurrency settings for FetchAll.
func (c *Config) DownloadOptions() download.Options {
	return download.Options{
		Attempts:    c.Download.Attempts,
		Concurrency: c.Download.Concurrency,
		Backoff:     time.Duration(c.Download.BackoffSeconds) * time.Second,
	}
}

// StatePath returns a path inside the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}

// Render encodes the configuration as TOML.
func Render(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// CreateSample writes the annotated sample configuration to path. An existing
// file is left untouched.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
