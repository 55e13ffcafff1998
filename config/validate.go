package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Transcode.Binary) == "" {
		return errors.New("transcode.binary must be set")
	}
	if err := c.validateBatches(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	switch c.TUI {
	case TUIAuto, TUIOn, TUIOff:
	default:
		return fmt.Errorf("tui must be auto, on or off, got %q", c.TUI)
	}
	if c.StateDir == "" {
		return errors.New("state_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	w := c.Workers
	if w.CPU < 0 || w.GPU < 0 {
		return errors.New("workers.cpu and workers.gpu must not be negative")
	}
	if w.CPU+w.GPU == 0 {
		return errors.New("at least one cpu or gpu worker is required")
	}
	if w.IdleTimeoutSeconds <= 0 {
		return errors.New("workers.idle_timeout_seconds must be positive")
	}
	if w.StallTimeoutSeconds <= 0 {
		return errors.New("workers.stall_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBatches() error {
	names := make(map[string]bool, len(c.Batches))
	for i, b := range c.Batches {
		if b.SourceDir == "" {
			return fmt.Errorf("batches[%d].source_dir must be set", i)
		}
		if b.DestinationDir == b.SourceDir {
			return fmt.Errorf("batch %s: destination_dir must differ from source_dir", b.Name)
		}
		if names[b.Name] {
			return fmt.Errorf("duplicate batch name %q", b.Name)
		}
		names[b.Name] = true
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Download.Attempts <= 0 {
		return errors.New("download.attempts must be positive")
	}
	if c.Download.Concurrency <= 0 {
		return errors.New("download.concurrency must be positive")
	}
	for i, d := range c.Downloads {
		u, err := url.Parse(d.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("downloads[%d].url must be an http(s) URL", i)
		}
		if d.Path == "" {
			return fmt.Errorf("downloads[%d].path must be set", i)
		}
	}
	return nil
}
