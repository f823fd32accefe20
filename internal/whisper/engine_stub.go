//go:build !whisper_cpp

package whisper

import (
	"context"
	"errors"
)

// ErrCppUnavailable is returned when the binary was built without cgo whisper.cpp support.
var ErrCppUnavailable = errors.New("whispercpp engine not compiled in (rebuild with -tags whisper_cpp)")

// Default stub (no cgo) so the project builds without whisper_cpp tag.
type cppLoader struct{ cfg CppConfig }

func NewCppLoader(cfg CppConfig) Loader { return &cppLoader{cfg: cfg} }

func (l *cppLoader) Load(ctx context.Context, model string, device Device) (Engine, error) {
	return nil, ErrCppUnavailable
}
