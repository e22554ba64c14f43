package datalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentExt = ".data"

// SegmentPath returns the path of segment id for the given base name.
func SegmentPath(dir, base string, id uint64) string {
	return filepath.Join(dir, base+"."+strconv.FormatUint(id, 10)+segmentExt)
}

// ParseSegmentName extracts the segment id from a file name shaped
// {base}.{id}.data.
func ParseSegmentName(base, name string) (uint64, bool) {
	prefix := base + "."
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentExt) {
		return 0, false
	}
	digits := name[len(prefix) : len(name)-len(segmentExt)]
	if digits == "" || strings.ContainsAny(digits, "+-") {
		return 0, false
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListSegments returns the ids of all segments of base in dir, ascending.
// Unrelated or malformed file names are skipped.
func ListSegments(dir, base string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("datalog: read dir %s: %w", dir, err)
	}
	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := ParseSegmentName(base, entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RemoveSegments deletes every segment file of base in dir.
func RemoveSegments(dir, base string) error {
	ids, err := ListSegments(dir, base)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(SegmentPath(dir, base, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("datalog: remove segment %d: %w", id, err)
		}
	}
	return nil
}

type segment struct {
	id   uint64
	path string
	f    *os.File
	size int64 // logical end of valid data

	// mmap-backed readonly view of a sealed segment; nil for the active one
	// or when mapping is unsupported
	data []byte
}

func openSegment(path string, id uint64, writable bool) (*segment, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("datalog: open segment %d: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("datalog: stat segment %d: %w", id, err)
	}
	return &segment{id: id, path: path, f: f, size: info.Size()}, nil
}

// read returns a copy of length bytes at offset, from the mapped view when
// it covers the range and through ReadAt otherwise.
func (seg *segment) read(offset int64, length uint32) ([]byte, error) {
	buf := make([]byte, int(length))
	if length == 0 {
		return buf, nil
	}
	end := offset + int64(length)
	if offset < 0 || end > seg.size {
		return nil, fmt.Errorf("datalog: segment %d: range [%d,%d) beyond size %d: %w", seg.id, offset, end, seg.size, io.ErrUnexpectedEOF)
	}
	if seg.data != nil && end <= int64(len(seg.data)) {
		copy(buf, seg.data[offset:end])
		return buf, nil
	}
	if _, err := seg.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("datalog: read segment %d at %d: %w", seg.id, offset, err)
	}
	return buf, nil
}

func (seg *segment) truncate(size int64) error {
	if err := seg.f.Truncate(size); err != nil {
		return fmt.Errorf("datalog: truncate segment %d: %w", seg.id, err)
	}
	if err := seg.f.Sync(); err != nil {
		return fmt.Errorf("datalog: sync segment %d: %w", seg.id, err)
	}
	seg.size = size
	return nil
}

func (seg *segment) close() error {
	seg.unmap()
	if seg.f == nil {
		return nil
	}
	err := seg.f.Close()
	seg.f = nil
	return err
}
