package epd

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Present when the panel has not been
	// initialized, or was left in an unknown state by a bus failure.
	ErrNotReady = errors.New("epd: panel not ready")

	// ErrInvalidBufferLength is wrapped by the ValidationError returned from
	// Present when strict length checking is enabled.
	ErrInvalidBufferLength = errors.New("epd: invalid frame buffer length")
)

// BusError reports a failed GPIO or SPI operation. The in-flight operation
// was aborted and the panel must be re-initialized.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("epd: bus error during %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// ValidationError is returned when strict validation rejects an argument.
type ValidationError struct {
	Got, Want int
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: got %d bytes, want %d", e.Err, e.Got, e.Want)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func busErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BusError
	if errors.As(err, &be) {
		return err
	}
	return &BusError{Op: op, Err: err}
}
