package record

import "errors"

var (
	// ErrTooLarge is returned when a key or value cannot be represented in the header.
	ErrTooLarge = errors.New("record: entry too large")

	// ErrTruncated indicates a frame extends past the end of its segment.
	ErrTruncated = errors.New("record: truncated entry")
)
