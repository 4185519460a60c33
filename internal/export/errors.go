package export

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job ID is unknown to the registry.
	ErrJobNotFound = errors.New("export job not found")
	// ErrInvalidState is returned when an operation is not valid for the
	// job's current status.
	ErrInvalidState = errors.New("job not in a valid state for this operation")
	// ErrPayloadMismatch is returned when a frame payload is not exactly
	// width*height*4 bytes.
	ErrPayloadMismatch = errors.New("frame payload size mismatch")
	// ErrPipelineUnavailable is returned when the encoder process handle is
	// gone while the job still claims to accept frames.
	ErrPipelineUnavailable = errors.New("encoder pipeline unavailable")
	// ErrWindowExceeded is returned when a frame arrives too far ahead of
	// the next expected index or would overflow the buffer byte cap.
	ErrWindowExceeded = errors.New("frame index outside reorder window")
	// ErrFinalizeTimeout is returned when the encoder does not exit within
	// the finalize deadline.
	ErrFinalizeTimeout = errors.New("encoder did not exit before timeout")
)

// EncoderError wraps an encoder failure with its stderr diagnostic tail.
type EncoderError struct {
	Op         string
	Err        error
	StderrTail string
}

func (e *EncoderError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.StderrTail)
}

func (e *EncoderError) Unwrap() error {
	return e.Err
}
