// Package transcode builds transcoder command lines and runs them as child
// processes, reporting each output line and the final exit status.
package transcode

import (
	"slices"
	"strings"
)

// Variant selects the encoding path a worker runs.
type Variant string

const (
	CPU Variant = "cpu"
	GPU Variant = "gpu"
)

// DefaultBinary is the transcoder invoked when none is configured.
const DefaultBinary = "HandBrakeCLI"

// DefaultArgs is the 1080p quality preset applied to every lecture recording.
var DefaultArgs = []string{
	"-v", "5",
	"-Z", "Very Fast 1080p30",
	"-f", "av_mp4",
	"-q", "24.0",
	"-w", "1920",
	"-l", "1080",
	"--keep-display-aspect",
}

// DefaultGPUArgs selects the NVENC hardware encoder.
var DefaultGPUArgs = []string{"-e", "nvenc_h264"}

// Template is an unresolved transcoder invocation: the binary and the preset
// arguments that precede the per-file input and output flags.
type Template struct {
	Binary string
	Args   []string
}

// DefaultTemplate returns the HandBrakeCLI preset template.
func DefaultTemplate() Template {
	return Template{Binary: DefaultBinary, Args: slices.Clone(DefaultArgs)}
}

// Build resolves the template for one file. The returned slice is freshly
// allocated and shares nothing with the template.
func (t Template) Build(src, dst string) []string {
	cmd := make([]string, 0, len(t.Args)+5)
	cmd = append(cmd, t.Binary)
	cmd = append(cmd, t.Args...)
	return append(cmd, "-i", src, "-o", dst)
}

// ForVariant returns the command a worker of the given variant executes. The
// GPU variant appends gpuArgs; command itself is never modified.
func ForVariant(command []string, v Variant, gpuArgs []string) []string {
	out := slices.Clone(command)
	if v == GPU {
		out = append(out, gpuArgs...)
	}
	return out
}

// String renders a command for log output.
func String(command []string) string {
	parts := make([]string, len(command))
	for i, arg := range command {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			parts[i] = `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}
