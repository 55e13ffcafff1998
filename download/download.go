// Package download fetches source media over HTTP into batch source
// directories before a transcode run.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/gotranscode/engine"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "Firefox"

// Request names one file to download and where to store it.
type Request struct {
	URL  string
	Path string
}

// ResultKind tags the variants of Result.
type ResultKind int

const (
	// Success means the file is present at Request.Path.
	Success ResultKind = iota
	// Retryable means the download failed and may be attempted again.
	Retryable
)

func (k ResultKind) String() string {
	if k == Success {
		return "success"
	}
	return "retryable"
}

// Result reports the outcome of one Request. A Retryable result carries the
// original request so it can be queued again as is.
type Result struct {
	Kind    ResultKind
	Request Request
	Bytes   int64

	// Skipped is set when the target, or the hidden marker left after its
	// original was transcoded away, already existed.
	Skipped bool

	Err error
}

// Fetcher downloads a single request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) Result
}

// HTTPFetcher downloads with net/http. Bodies are streamed to a hidden
// temporary file next to the target and renamed into place once complete,
// so discovery never sees a partial file.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	Buffers   *engine.BufferPool

	// Progress, when set, returns a writer that observes the body as it is
	// copied. size is -1 when the server sends no length.
	Progress func(req Request, size int64) io.Writer

	Logger logrus.FieldLogger
}

// NewHTTPFetcher creates a fetcher with the given user agent.
func NewHTTPFetcher(userAgent string, buffers *engine.BufferPool) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if buffers == nil {
		buffers = engine.NewBufferPool(0)
	}
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 6 * time.Hour},
		UserAgent: userAgent,
		Buffers:   buffers,
	}
}

func (f *HTTPFetcher) log() logrus.FieldLogger {
	if f.Logger == nil {
		return logrus.StandardLogger()
	}
	return f.Logger
}

// Fetch downloads req. Every failure is reported as Retryable.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) Result {
	log := f.log().WithFields(logrus.Fields{"url": req.URL, "path": req.Path})

	if present(req.Path) {
		log.Debug("already downloaded")
		return Result{Kind: Success, Request: req, Skipped: true}
	}

	log.Info("downloading")
	n, err := f.fetch(ctx, req)
	if err != nil {
		log.WithError(err).Warn("download failed")
		return Result{Kind: Retryable, Request: req, Bytes: n, Err: err}
	}
	log.WithField("bytes", n).Info("download done")
	return Result{Kind: Success, Request: req, Bytes: n}
}

func (f *HTTPFetcher) fetch(ctx context.Context, req Request) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	dir := filepath.Dir(req.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, engine.HiddenPrefix+filepath.Base(req.Path)+".part-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if f.Progress != nil {
		if p := f.Progress(req, resp.ContentLength); p != nil {
			w = io.MultiWriter(tmp, p)
		}
	}

	buf := f.Buffers.Get()
	defer f.Buffers.Put(buf)

	n, err := io.CopyBuffer(w, resp.Body, *buf)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		tmp.Close()
		return n, fmt.Errorf("short body: %d of %d bytes", n, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), req.Path)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected response: " + e.Status
}

// present reports whether path or its hidden marker exists.
func present(path string) bool {
	marker := filepath.Join(filepath.Dir(path), engine.HiddenPrefix+filepath.Base(path))
	for _, p := range []string{path, marker} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
