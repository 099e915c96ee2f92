package inspect

import (
	"errors"
	"fmt"

	"dents-inspector/api/internal/vision"
)

var (
	ErrFileNotFound      = errors.New("archive not found")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrCorruptArchive    = errors.New("corrupt archive")
	ErrNoImages          = errors.New("archive contains no images")
	ErrInstructions      = errors.New("instructions unavailable")
	ErrWorkspace         = errors.New("workspace unavailable")
	ErrMalformedResponse = errors.New("malformed model response")

	// Backend failures share the vision sentinels so callers can match
	// either package.
	ErrUploadFailed = vision.ErrUploadFailed
	ErrBackend      = vision.ErrBackend
	ErrTimeout      = vision.ErrTimeout
)

// Error is the single error type returned by Inspect. Kind is one of the
// sentinels above.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("inspect: %s: %v", msg, e.Err)
	}
	return fmt.Sprintf("inspect: %s: %v", msg, e.Kind)
}

func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Kind == ErrTimeout {
		out = append(out, ErrBackend)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the Kind of an inspect error or nil.
func KindOf(err error) error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return nil
}

func fail(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// backendKind picks the kind for an error coming out of a vision client.
func backendKind(err error) error {
	switch {
	case errors.Is(err, vision.ErrUploadFailed):
		return ErrUploadFailed
	case errors.Is(err, vision.ErrTimeout):
		return ErrTimeout
	default:
		return ErrBackend
	}
}
