package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franksops/gotranscode/engine"
	"github.com/franksops/gotranscode/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSelectBatches(t *testing.T) {
	all := []engine.Batch{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	got, err := selectBatches(all, nil)
	if err != nil || len(got) != 3 {
		t.Fatalf("expected all batches, got %v, %v", got, err)
	}

	got, err = selectBatches(all, []string{"c", "a"})
	if err != nil || len(got) != 2 || got[0].Name != "c" || got[1].Name != "a" {
		t.Errorf("unexpected selection %v, %v", got, err)
	}

	if _, err := selectBatches(all, []string{"x"}); err == nil {
		t.Error("expected an error for an unknown batch")
	}
	if _, err := selectBatches(nil, nil); err == nil {
		t.Error("expected an error without batches")
	}
}

func TestFilterRecords(t *testing.T) {
	records := []*store.JobRecord{
		{ID: "3", RunID: "new"},
		{ID: "2", RunID: "new"},
		{ID: "1", RunID: "old"},
	}

	if got := filterRecords(records, "", false); len(got) != 2 {
		t.Errorf("expected the latest run only, got %d records", len(got))
	}
	if got := filterRecords(records, "old", false); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("expected run old, got %v", got)
	}
	if got := filterRecords(records, "", true); len(got) != 3 {
		t.Errorf("expected every record, got %d", len(got))
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Batch", "Size"}, [][]string{{"lectures", "1.2 GB"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"Batch", "Size", "lectures", "1.2 GB", "short"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestArgRequests(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "in")

	reqs, err := argRequests([]string{"https://example.org/v/lecture-01.mp4?x=1"}, dir)
	if err != nil {
		t.Fatalf("argRequests failed: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Path != filepath.Join(dir, "lecture-01.mp4") {
		t.Errorf("unexpected requests %+v", reqs)
	}

	if _, err := argRequests([]string{"https://example.org/a.mp4"}, ""); err == nil {
		t.Error("expected an error without --dir")
	}
	if _, err := argRequests([]string{"file:///etc/passwd"}, dir); err == nil {
		t.Error("expected an error for a non-http URL")
	}
	if _, err := argRequests([]string{"https://example.org/"}, dir); err == nil {
		t.Error("expected an error for a URL without a file name")
	}
}

func TestUseTUI(t *testing.T) {
	var buf bytes.Buffer
	if useTUI("auto", &buf) {
		t.Error("auto must not enable the dashboard for a non-terminal")
	}
	if !useTUI("on", &buf) || useTUI("off", &buf) {
		t.Error("explicit modes must win")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtrans.toml")

	out, err := execute(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("expected target in output, got %q", out)
	}

	if _, err := execute(t, "config", "init", "--path", path); err == nil {
		t.Error("expected init to refuse an existing file")
	}
	if _, err := execute(t, "config", "init", "--path", path, "--overwrite"); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	out, err = execute(t, "--config", path, "--log-level", "debug", "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"[workers]", "log_level = ", "debug", "HandBrakeCLI"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

const fakeTranscoder = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
    -o) out="$2"; shift ;;
  esac
  shift
done
echo "Encoding: task 1 of 1, 100.00 %"
head -c 4 "$in" > "$out"
`

func TestRunEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	root := t.TempDir()
	binary := filepath.Join(root, "fake-handbrake")
	if err := os.WriteFile(binary, []byte(fakeTranscoder), 0o755); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(root, "lectures")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"w1.mp4", "w2.mp4", "w3.mp4"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("original video"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(root, "gtrans.toml")
	cfg := `
state_dir = "` + filepath.Join(root, "state") + `"
log_level = "error"
tui = "off"

[workers]
cpu = 2
idle_timeout_seconds = 1

[transcode]
binary = "` + binary + `"
args = ["-q", "24.0"]

[[batches]]
source_dir = "` + src + `"
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "-c", path, "discover")
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if !strings.Contains(out, "3 files") {
		t.Errorf("expected 3 files discovered:\n%s", out)
	}

	start := time.Now()
	out, err = execute(t, "-c", path, "run")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 succeeded, 0 failed") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if time.Since(start) > 30*time.Second {
		t.Error("run did not finish after its idle timeout")
	}

	dst := src + "_compressed"
	for _, name := range []string{"w1", "w2", "w3"} {
		if _, err := os.Stat(filepath.Join(dst, name+"_comp.mp4")); err != nil {
			t.Errorf("missing output for %s: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(src, name+".mp4")); !os.IsNotExist(err) {
			t.Errorf("original %s should be removed", name)
		}
		if _, err := os.Stat(filepath.Join(src, "."+name+".mp4")); err != nil {
			t.Errorf("missing marker for %s: %v", name, err)
		}
	}

	stats, err := os.ReadFile(filepath.Join(dst, engine.StatsFile))
	if err != nil || !strings.Contains(string(stats), "Compressed size: 12") {
		t.Errorf("unexpected destination stats %q, %v", stats, err)
	}
	stats, err = os.ReadFile(filepath.Join(src, engine.StatsFile))
	if err != nil || !strings.Contains(string(stats), "Downloaded size: 42") {
		t.Errorf("unexpected source stats %q, %v", stats, err)
	}

	out, err = execute(t, "-c", path, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.Count(out, "Completed") != 3 {
		t.Errorf("expected 3 completed jobs:\n%s", out)
	}

	out, err = execute(t, "-c", path, "run")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(out, "Nothing to transcode.") {
		t.Errorf("second run should find no work:\n%s", out)
	}
}

const failingTranscoder = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
    -o) out="$2"; shift ;;
  esac
  shift
done
case "$in" in
  *bad*) echo "Encode failed" >&2; exit 1 ;;
esac
head -c 4 "$in" > "$out"
`

func TestRunFailedJobExitsZero(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	root := t.TempDir()
	binary := filepath.Join(root, "fake-handbrake")
	if err := os.WriteFile(binary, []byte(failingTranscoder), 0o755); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(root, "lectures")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"bad.mp4", "good.mp4"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("original video"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(root, "gtrans.toml")
	cfg := `
state_dir = "` + filepath.Join(root, "state") + `"
log_level = "error"
tui = "off"

[workers]
cpu = 1
idle_timeout_seconds = 1

[transcode]
binary = "` + binary + `"

[[batches]]
source_dir = "` + src + `"
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "-c", path, "run")
	if err != nil {
		t.Fatalf("a failed job should not fail the run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 succeeded, 1 failed") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(src, "bad.mp4")); err != nil {
		t.Errorf("failed job lost its original: %v", err)
	}
	if _, err := os.Stat(filepath.Join(src, ".bad.mp4")); !os.IsNotExist(err) {
		t.Error("failed job wrote a marker")
	}

	out, err = execute(t, "-c", path, "discover")
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if !strings.Contains(out, "1 files") {
		t.Errorf("failed job should be discovered again:\n%s", out)
	}
}
