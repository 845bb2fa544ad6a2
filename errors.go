package disksim

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type SimError interface {
	error
	WithMessage(message string) SimError
	Wrap(err error) SimError
}

type baseSimError string

const rootError = baseSimError("")

// ErrInsufficientContiguousSpace means continuous allocation found no run of the
// required length, even though the total free space may suffice.
var ErrInsufficientContiguousSpace = rootError.WithMessage("Insufficient contiguous space")

// ErrInsufficientSpace means linked or indexed allocation couldn't draw enough
// free blocks, including the index block indexed allocation needs.
var ErrInsufficientSpace = rootError.WithMessage("Insufficient space on device")

// ErrDoubleReservation means a caller tried to reserve a block that is already
// used. This is a programming error and must not be retried.
var ErrDoubleReservation = rootError.WithMessage("Block already reserved")

var ErrBlockOutOfRange = rootError.WithMessage("Block number out of range")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrNotFound = rootError.WithMessage("No such file")
var ErrExists = rootError.WithMessage("File exists")
var ErrCorruptSnapshot = rootError.WithMessage("Snapshot is inconsistent")
var ErrInconsistentState = rootError.WithMessage("Structure needs cleaning")

func (e baseSimError) Error() string {
	return string(e)
}

func (e baseSimError) RootCause() SimError {
	return e
}

func (e baseSimError) WithMessage(message string) SimError {
	return customSimError{
		message:       message,
		originalError: e,
	}
}

func (e baseSimError) Wrap(err error) SimError {
	return customSimError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customSimError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customSimError) Error() string {
	return e.message
}

func (e customSimError) WithMessage(message string) SimError {
	return customSimError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customSimError) Wrap(err error) SimError {
	return customSimError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customSimError) Unwrap() error {
	return e.originalError
}
