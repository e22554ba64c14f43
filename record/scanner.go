package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Entry is a frame located by a Scanner. Value bytes are skipped, not read.
type Entry struct {
	Offset int64 // start of the frame within the segment
	Key    []byte
	Header Header
}

// ValueOffset returns the absolute offset of the value bytes.
func (e *Entry) ValueOffset() int64 {
	return e.Offset + HeaderSize + int64(len(e.Key))
}

// End returns the offset just past the frame.
func (e *Entry) End() int64 {
	return e.Offset + e.Header.Size()
}

// Scanner decodes frames sequentially from a segment of known size.
type Scanner struct {
	r      *bufio.Reader
	size   int64
	offset int64
	entry  Entry
	err    error
}

// NewScanner returns a Scanner reading up to size bytes from r.
func NewScanner(r io.Reader, size int64) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024), size: size}
}

// Next advances to the next frame. It returns false at the end of the
// segment or on error; check Err to tell them apart.
func (s *Scanner) Next() bool {
	if s.err != nil || s.offset >= s.size {
		return false
	}
	if s.size-s.offset < HeaderSize {
		s.err = s.truncated()
		return false
	}
	header, err := DecodeHeader(s.r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = s.truncated()
			return false
		}
		s.err = fmt.Errorf("record: read header at %d: %w", s.offset, err)
		return false
	}
	if s.offset+header.Size() > s.size {
		s.err = s.truncated()
		return false
	}
	key := make([]byte, header.KeyLen)
	if _, err := io.ReadFull(s.r, key); err != nil {
		s.err = fmt.Errorf("record: read key at %d: %w", s.offset, err)
		return false
	}
	if !header.IsTombstone() && header.ValueLen > 0 {
		if _, err := s.r.Discard(int(header.ValueLen)); err != nil {
			s.err = fmt.Errorf("record: skip value at %d: %w", s.offset, err)
			return false
		}
	}
	s.entry = Entry{Offset: s.offset, Key: key, Header: header}
	s.offset = s.entry.End()
	return true
}

// Entry returns the frame decoded by the last successful Next.
func (s *Scanner) Entry() *Entry {
	return &s.entry
}

// Offset returns the end of the last fully decoded frame.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Err returns the first error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) truncated() error {
	return fmt.Errorf("record: frame at %d of %d: %w", s.offset, s.size, ErrTruncated)
}
