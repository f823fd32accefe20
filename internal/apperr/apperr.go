// Package apperr defines the coded errors surfaced by a transcription run.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it without matching strings.
type Kind string

const (
	InputNotFound     Kind = "INPUT_NOT_FOUND"
	MediaUnreadable   Kind = "MEDIA_UNREADABLE"
	FilterFailed      Kind = "FILTER_FAILED"
	ModelLoadFailed   Kind = "MODEL_LOAD_FAILED"
	RecognitionFailed Kind = "RECOGNITION_FAILED"
	OutputWriteFailed Kind = "OUTPUT_WRITE_FAILED"
	Timeout           Kind = "TIMEOUT"
	InvalidConfig     Kind = "INVALID_CONFIG"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A Timeout already present in err's chain wins over
// kind, so a deadline hit inside ffmpeg is reported as a timeout and not as a
// filter failure.
func New(kind Kind, op string, err error) *Error {
	if kind != Timeout && Is(err, Timeout) {
		kind = Timeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is a formatted message.
func Errorf(kind Kind, op, format string, a ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, a...)}
}

// KindOf returns the outermost Kind in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether any Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
