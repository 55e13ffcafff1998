package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ExitStatus is the final status of a transcoder process. Known is false
// when the runner could not observe a code at all. A process killed by a
// signal reports the shell convention 128+signal.
type ExitStatus struct {
	Code  int
	Known bool
}

// Failed reports whether an explicit non-zero status was observed.
func (s ExitStatus) Failed() bool {
	return s.Known && s.Code != 0
}

func (s ExitStatus) String() string {
	if !s.Known {
		return "unknown"
	}
	return strconv.Itoa(s.Code)
}

// Runner executes a resolved command synchronously. onLine receives every
// line the process writes to stdout or stderr; calls are serialized.
// A non-zero exit is not an error; the returned error is reserved for
// processes that could not be started or observed.
type Runner interface {
	Run(ctx context.Context, command []string, onLine func(string)) (ExitStatus, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// WaitDelay bounds how long to wait for the process to exit after it was
	// interrupted by context cancellation before it is killed.
	WaitDelay time.Duration
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner that gives interrupted transcoders ten
// seconds to finish writing before killing them.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 10 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, command []string, onLine func(string)) (ExitStatus, error) {
	if len(command) == 0 {
		return ExitStatus{}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.WaitDelay

	var mu sync.Mutex
	stdout := &lineWriter{mu: &mu, emit: onLine}
	stderr := &lineWriter{mu: &mu, emit: onLine}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return ExitStatus{}, fmt.Errorf("start %s: %w", command[0], err)
	}

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	status := exitStatus(cmd.ProcessState)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return status, ctxErr
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return status, fmt.Errorf("wait %s: %w", command[0], waitErr)
	}
	return status, nil
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{}
	}
	code := state.ExitCode()
	if code < 0 {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: 128 + int(ws.Signal()), Known: true}
		}
		return ExitStatus{}
	}
	return ExitStatus{Code: code, Known: true}
}

// maxLine caps how much unterminated output is buffered before it is
// emitted anyway.
const maxLine = 1024 * 1024

// lineWriter splits process output on '\n' and on the bare '\r'
// transcoders use to redraw their progress line.
type lineWriter struct {
	mu   *sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.send(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.send(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.send(w.buf)
	w.buf = nil
}

func (w *lineWriter) send(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || w.emit == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(string(line))
}
