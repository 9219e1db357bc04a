package gpu

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfDate reports that the presentation surface no longer matches
	// the image chain. The frame is skipped and the chain rebuilt.
	ErrOutOfDate = errors.New("surface out of date")

	// ErrUnsupportedDimensions reports surface dimensions the backend
	// cannot build an image chain for, typically a minimized window.
	ErrUnsupportedDimensions = errors.New("unsupported surface dimensions")

	// ErrDeviceLost reports an unrecoverable device or driver failure.
	ErrDeviceLost = errors.New("device lost")

	// ErrLayoutMismatch reports resources that do not match a pipeline's
	// declared slot layout.
	ErrLayoutMismatch = errors.New("resources do not match pipeline slot layout")
)

// IsFatal reports whether err must terminate the frame loop. Out-of-date and
// unsupported-dimension errors are transient; the frame manager absorbs them
// and never returns them.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrUnsupportedDimensions) {
		return false
	}
	return true
}

// isRecoverable reports failures the frame manager downgrades to a skipped
// frame.
func isRecoverable(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrUnsupportedDimensions)
}
