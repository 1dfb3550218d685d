package hatvec

import (
	"errors"
	"fmt"
)

// Common errors returned by the index, the payload store ports, and the
// attention-state container. Each bucket corresponds to a category in the
// error taxonomy: domain, capacity, conflict, not-found, format, I/O.
var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// equal the configured dimensionality.
	ErrDimensionMismatch = errors.New("hatvec: dimension mismatch")

	// ErrCapacityExceeded is returned when a payload store's size budget
	// would be exceeded by an insert.
	ErrCapacityExceeded = errors.New("hatvec: capacity exceeded")

	// ErrConflict is returned when PlaceWithID is called with an id that
	// already exists in the store.
	ErrConflict = errors.New("hatvec: id already exists")

	// ErrNotFound is returned when an operation references an unknown id.
	ErrNotFound = errors.New("hatvec: id not found")

	// ErrInvalidText is returned when UTF-8 text is required but absent.
	ErrInvalidText = errors.New("hatvec: invalid UTF-8 text")

	// ErrInvalidRole is returned when a role byte is outside the known range.
	ErrInvalidRole = errors.New("hatvec: invalid role byte")

	// ErrInvalidHex is returned when a hex id string is malformed.
	ErrInvalidHex = errors.New("hatvec: invalid hex identifier")

	// ErrClosed names the closed-engine case. Engine has no Close method,
	// and no operation in this module returns ErrClosed.
	ErrClosed = errors.New("hatvec: engine is closed")

	// ErrFormat is returned for bad magic, unsupported version, truncation,
	// CRC mismatch, or structural problems (orphan parent, cycle) found
	// while parsing a persisted file or container record.
	ErrFormat = errors.New("hatvec: invalid format")
)

// OpError wraps an error with the name of the operation that produced it,
// following the single wrap-and-return convention used throughout the
// package: no retries, no logging, the caller decides what to do next.
type OpError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("hatvec: %v", e.Err)
	}
	return fmt.Sprintf("hatvec: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match against the wrapped sentinel.
func (e *OpError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps err with an operation name, or returns nil unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
