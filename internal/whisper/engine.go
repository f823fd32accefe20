package whisper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

// Device is the compute device an engine is bound to.
type Device string

const (
	CPU         Device = "cpu"
	Accelerator Device = "accelerator"
)

// ParseDevice accepts cpu, accelerator and the cuda/gpu aliases.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "accelerator", "cuda", "gpu":
		return Accelerator, nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu or accelerator)", s)
	}
}

// FallbackModel is loaded instead of the requested model when loading it runs
// out of memory.
const FallbackModel = "base"

// ErrResourceExhausted marks load failures caused by insufficient memory on
// the target device.
var ErrResourceExhausted = errors.New("resource exhausted")

var oomMarkers = []string{
	"out of memory",
	"failed to allocate",
	"cannot allocate memory",
	"insufficient memory",
	"cuda error: out of memory",
}

// IsResourceExhausted reports whether err is, or reads like, a memory
// exhaustion failure.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResourceExhausted) {
		return true
	}
	return looksExhausted(err.Error())
}

func looksExhausted(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range oomMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Options are the per-call recognition parameters.
type Options struct {
	// Language is an ISO 639-1 code; empty means auto-detect.
	Language string
	// FastPrecision asks for half precision where the engine supports it.
	FastPrecision bool
}

// RawResult holds segments timed relative to the start of the clip.
type RawResult struct {
	Segments []transcript.Segment
	Language string
}

// Engine is a loaded recognition model. Implementations must tolerate
// repeated sequential calls. Concurrent calls are only made when the engine
// also implements ConcurrentSafe and reports true.
type Engine interface {
	Transcribe(ctx context.Context, clipPath string, opts Options) (RawResult, error)
	// Bind moves the engine to device. An error leaves it on Device().
	Bind(device Device) error
	Device() Device
	Model() string
	Name() string
	Close() error
}

// ConcurrentSafe is implemented by engines that can serve parallel calls.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// Loader loads a named model onto a device.
type Loader interface {
	Load(ctx context.Context, model string, device Device) (Engine, error)
}

// CppConfig configures the in-process whisper.cpp engine.
type CppConfig struct {
	ModelDir string
	Threads  uint
}

// ModelFile resolves a model name to a ggml file in dir. Names that already
// look like a path are returned unchanged.
func ModelFile(dir, name string) string {
	if strings.HasSuffix(name, ".bin") || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if !strings.HasPrefix(name, "ggml-") {
		name = "ggml-" + name
	}
	return filepath.Join(dir, name+".bin")
}
