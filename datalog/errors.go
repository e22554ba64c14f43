package datalog

import "errors"

var (
	// ErrClosed is returned when the log has been closed.
	ErrClosed = errors.New("datalog: log closed")

	// ErrSegmentNotFound indicates a location refers to a segment with no open handle.
	ErrSegmentNotFound = errors.New("datalog: segment not found")

	// ErrCorrupt indicates a malformed record inside a sealed segment.
	ErrCorrupt = errors.New("datalog: data corruption detected")
)
