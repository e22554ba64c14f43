package bitcask

import (
	"errors"

	"github.com/viant/bitcask/datalog"
	"github.com/viant/bitcask/lock"
	"github.com/viant/bitcask/record"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("bitcask: db closed")

	// ErrLocked is returned by Open when another instance holds the directory.
	ErrLocked = lock.ErrLocked

	// ErrSegmentNotFound indicates an index entry refers to a missing segment.
	ErrSegmentNotFound = datalog.ErrSegmentNotFound

	// ErrCorrupt indicates a malformed record inside a sealed segment.
	ErrCorrupt = datalog.ErrCorrupt

	// ErrInvalidBaseName is returned by Open for base names that could collide
	// with segment, merge or lock files of another store in the same directory.
	ErrInvalidBaseName = errors.New("bitcask: invalid base name")

	// ErrTooLarge is returned for keys or values whose length does not fit the record header.
	ErrTooLarge = record.ErrTooLarge
)

// IsNotFound reports whether err is a not-found kind of error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSegmentNotFound)
}
