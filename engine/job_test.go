package engine

import (
	"errors"
	"testing"
)

func TestJobChannel_Enqueue(t *testing.T) {
	q := NewJobChannel(1)

	if err := q.Enqueue(TranscodeJob{ID: "a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(TranscodeJob{ID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	if got := <-q; got.ID != "a" {
		t.Errorf("expected job a, got %s", got.ID)
	}
}

func TestNewJobQueue(t *testing.T) {
	jobs := []TranscodeJob{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	q, err := NewJobQueue(jobs)
	if err != nil {
		t.Fatalf("NewJobQueue failed: %v", err)
	}
	if len(q) != 3 || cap(q) != 3 {
		t.Fatalf("expected len=cap=3, got len=%d cap=%d", len(q), cap(q))
	}
	for _, want := range []string{"a", "b", "c"} {
		if got := <-q; got.ID != want {
			t.Errorf("expected %s, got %s", want, got.ID)
		}
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		want   string
	}{
		{"a.mp4", "_comp", "a_comp.mp4"},
		{"2024-02-20T14_13.mp4", "_comp", "2024-02-20T14_13_comp.mp4"},
		{"archive.tar.gz", "_x", "archive.tar_x.gz"},
		{"noext", "_comp", "noext_comp"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.name, tt.suffix); got != tt.want {
			t.Errorf("OutputName(%q, %q) = %q; want %q", tt.name, tt.suffix, got, tt.want)
		}
	}
}

func TestOutcomeKind_String(t *testing.T) {
	kinds := map[OutcomeKind]string{
		OutcomeSuccess:          "success",
		OutcomeFailure:          "failure",
		OutcomeWorkerException:  "exception",
		OutcomeWorkerTerminated: "terminated",
		OutcomeKind(99):         "unknown",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %q; want %q", k, k.String(), want)
		}
	}
}
