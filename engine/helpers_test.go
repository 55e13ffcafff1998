package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/franksops/gotranscode/transcode"
)

// fakeRunner stands in for the transcoder. It writes the file named after
// "-o" unless the configured status says the run failed.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string

	delay  time.Duration
	result func(command []string) (transcode.ExitStatus, error)
	noOut  bool
}

func (f *fakeRunner) Run(ctx context.Context, command []string, onLine func(string)) (transcode.ExitStatus, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	if onLine != nil {
		onLine("Encoding: task 1 of 1, 100.00 %")
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return transcode.ExitStatus{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	status := transcode.ExitStatus{Code: 0, Known: true}
	var err error
	if f.result != nil {
		status, err = f.result(command)
	}
	if err != nil || status.Failed() || f.noOut {
		return status, err
	}

	if out := argAfter(command, "-o"); out != "" {
		if werr := os.WriteFile(out, []byte("compressed"), 0644); werr != nil {
			return status, werr
		}
	}
	return status, nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func argAfter(command []string, flag string) string {
	for i := 0; i+1 < len(command); i++ {
		if command[i] == flag {
			return command[i+1]
		}
	}
	return ""
}

// newTestJob creates a source file in srcDir and returns its job.
func newTestJob(t *testing.T, srcDir, dstDir, name string, keep bool) TranscodeJob {
	t.Helper()
	src := filepath.Join(srcDir, name)
	if err := os.WriteFile(src, []byte("original "+name), 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dstDir, OutputName(name, DefaultSuffix))
	return TranscodeJob{
		ID:               src,
		Batch:            "test",
		Command:          transcode.Template{Binary: "HandBrakeCLI", Args: []string{"-q", "24.0"}}.Build(src, dst),
		SourcePath:       src,
		DestinationPath:  dst,
		HiddenMarkerPath: filepath.Join(srcDir, HiddenPrefix+name),
		KeepOriginal:     keep,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
