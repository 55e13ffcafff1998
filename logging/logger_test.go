package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewText(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Console: &console})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.WithField("worker", "01").Warn("shown")

	out := console.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "worker=01") {
		t.Errorf("expected warn entry with fields, got %q", out)
	}
}

func TestNewJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gtrans.log")
	var console bytes.Buffer

	logger, closer, err := New(Options{Level: "debug", Format: "json", File: path, Console: &console})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithField("variant", "gpu").Debug("line")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file is not json: %v (%q)", err, data)
	}
	if entry["msg"] != "line" || entry["variant"] != "gpu" {
		t.Errorf("unexpected entry %v", entry)
	}
	if console.Len() == 0 {
		t.Error("console should receive entries too")
	}
}

func TestNewQuiet(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "gtrans.log")

	logger, closer, err := New(Options{Quiet: true, File: path, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file only")
	closer.Close()

	if console.Len() != 0 {
		t.Errorf("quiet logger wrote to the console: %q", console.String())
	}
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "to file only") {
		t.Errorf("expected entry in file, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logrus.Level
		wantErr bool
	}{
		{"", logrus.InfoLevel, false},
		{"DEBUG", logrus.DebugLevel, false},
		{"warning", logrus.WarnLevel, false},
		{" error ", logrus.ErrorLevel, false},
		{"trace", logrus.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}
