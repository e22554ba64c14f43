// Package datalog manages the append-only segment files of a bitcask store.
//
// A log is a set of files named {base}.{id}.data in one directory. The
// segment with the highest id is active and receives every append; the rest
// are sealed, immutable, and memory-mapped for reads where the platform
// allows it.
package datalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/keydir"
	"github.com/viant/bitcask/record"
)

// DefaultSegmentSize is the rotation threshold used when Options leaves it unset.
const DefaultSegmentSize int64 = 1 << 20

// Options configures a Log.
type Options struct {
	// SegmentSize is the byte threshold past which the active segment is
	// sealed before the next append.
	SegmentSize int64
	// FirstID is the id of the segment created when the directory holds none.
	FirstID uint64
	// SyncWrites fsyncs the active segment after every append.
	SyncWrites bool
	Logger     *logrus.Entry
}

func (o *Options) init() {
	if o.SegmentSize <= 0 {
		o.SegmentSize = DefaultSegmentSize
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Position locates a written frame.
type Position struct {
	SegmentID uint64
	Offset    int64 // frame start
	Size      int64 // frame length
}

// Stats summarizes log activity since Open.
type Stats struct {
	Segments     int    `json:"segments"`
	ActiveID     uint64 `json:"activeId"`
	Size         int64  `json:"size"`
	Appends      uint64 `json:"appends"`
	Rotations    uint64 `json:"rotations"`
	BytesWritten uint64 `json:"bytesWritten"`
	BytesRead    uint64 `json:"bytesRead"`
	Truncated    int64  `json:"truncated"`
}

// Log is an ordered set of segment files. It is not safe for concurrent use.
type Log struct {
	dir      string
	base     string
	opts     Options
	logger   *logrus.Entry
	segments map[uint64]*segment
	ids      []uint64
	active   *segment
	closed   bool
	stats    Stats
}

// Open opens every segment of base in dir, creating the directory and the
// first segment when needed.
func Open(dir, base string, opts Options) (*Log, error) {
	opts.init()
	if base == "" {
		return nil, fmt.Errorf("datalog: empty base name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("datalog: create dir %s: %w", dir, err)
	}
	ids, err := ListSegments(dir, base)
	if err != nil {
		return nil, err
	}
	l := &Log{
		dir:      dir,
		base:     base,
		opts:     opts,
		logger:   opts.Logger.WithField("log", base),
		segments: make(map[uint64]*segment, len(ids)+1),
	}
	if len(ids) == 0 {
		ids = []uint64{opts.FirstID}
	}
	last := len(ids) - 1
	for i, id := range ids {
		seg, err := openSegment(SegmentPath(dir, base, id), id, i == last)
		if err != nil {
			_ = l.closeAll()
			return nil, err
		}
		if i != last {
			seg.remap()
		}
		l.segments[id] = seg
	}
	l.ids = ids
	l.active = l.segments[ids[last]]
	l.logger.WithFields(logrus.Fields{"dir": dir, "segments": len(ids), "active": l.active.id}).Debug("opened log")
	return l, nil
}

// Dir returns the directory holding the segments.
func (l *Log) Dir() string { return l.dir }

// Base returns the segment base name.
func (l *Log) Base() string { return l.base }

// ActiveID returns the id of the active segment.
func (l *Log) ActiveID() uint64 { return l.active.id }

// Segments returns the open segment ids, ascending.
func (l *Log) Segments() []uint64 {
	return append([]uint64(nil), l.ids...)
}

// Size returns the total bytes across all segments.
func (l *Log) Size() int64 {
	var total int64
	for _, seg := range l.segments {
		total += seg.size
	}
	return total
}

// Stats returns a copy of the log counters.
func (l *Log) Stats() Stats {
	stats := l.stats
	stats.Segments = len(l.ids)
	stats.ActiveID = l.active.id
	stats.Size = l.Size()
	return stats
}

// Write appends rec to the active segment, sealing it first when the frame
// would push it past the segment size. An empty active segment always takes
// the frame.
func (l *Log) Write(rec *record.Record) (Position, error) {
	if l.closed {
		return Position{}, ErrClosed
	}
	frame, err := record.Encode(rec)
	if err != nil {
		return Position{}, err
	}
	size := int64(len(frame))
	if l.active.size > 0 && l.active.size+size > l.opts.SegmentSize {
		if err := l.rotate(); err != nil {
			return Position{}, err
		}
	}
	seg := l.active
	offset := seg.size
	if _, err := seg.f.WriteAt(frame, offset); err != nil {
		return Position{}, fmt.Errorf("datalog: write segment %d at %d: %w", seg.id, offset, err)
	}
	seg.size += size
	if l.opts.SyncWrites {
		if err := seg.f.Sync(); err != nil {
			return Position{}, fmt.Errorf("datalog: sync segment %d: %w", seg.id, err)
		}
	}
	l.stats.Appends++
	l.stats.BytesWritten += uint64(size)
	return Position{SegmentID: seg.id, Offset: offset, Size: size}, nil
}

func (l *Log) rotate() error {
	prev := l.active
	id := prev.id + 1
	// the sealed segment must be durable before a higher id exists, since
	// replay only forgives a torn tail on the highest segment
	if err := prev.f.Sync(); err != nil {
		return fmt.Errorf("datalog: sync segment %d: %w", prev.id, err)
	}
	seg, err := openSegment(SegmentPath(l.dir, l.base, id), id, true)
	if err != nil {
		return err
	}
	if seg.size != 0 {
		_ = seg.close()
		return fmt.Errorf("datalog: segment %d already holds %d bytes", id, seg.size)
	}
	prev.remap()
	l.segments[id] = seg
	l.ids = append(l.ids, id)
	l.active = seg
	l.stats.Rotations++
	l.logger.WithFields(logrus.Fields{"sealed": prev.id, "active": id, "size": prev.size}).Debug("rotated segment")
	return nil
}

// ReadValue returns a copy of length bytes at offset in segment id.
func (l *Log) ReadValue(id uint64, offset int64, length uint32) ([]byte, error) {
	if l.closed {
		return nil, ErrClosed
	}
	seg, ok := l.segments[id]
	if !ok {
		return nil, fmt.Errorf("datalog: segment %d: %w", id, ErrSegmentNotFound)
	}
	data, err := seg.read(offset, length)
	if err != nil {
		return nil, err
	}
	l.stats.BytesRead += uint64(length)
	return data, nil
}

// LoadIndex replays every segment in id order and returns the resulting
// index. A torn frame at the tail of the active segment is cut off; a
// malformed frame anywhere else fails with ErrCorrupt.
func (l *Log) LoadIndex() (*keydir.KeyDir, error) {
	if l.closed {
		return nil, ErrClosed
	}
	index := keydir.New()
	for _, id := range l.ids {
		seg := l.segments[id]
		scanner := record.NewScanner(io.NewSectionReader(seg.f, 0, seg.size), seg.size)
		for scanner.Next() {
			entry := scanner.Entry()
			if entry.Header.IsTombstone() {
				index.Remove(entry.Key)
				continue
			}
			index.Put(entry.Key, keydir.Location{
				SegmentID: id,
				Offset:    entry.ValueOffset(),
				Length:    uint32(entry.Header.ValueLen),
			})
		}
		err := scanner.Err()
		if err == nil {
			continue
		}
		if !errors.Is(err, record.ErrTruncated) {
			return nil, fmt.Errorf("datalog: replay segment %d: %w", id, err)
		}
		if seg != l.active {
			return nil, fmt.Errorf("datalog: replay segment %d: %w: %w", id, ErrCorrupt, err)
		}
		valid := scanner.Offset()
		dropped := seg.size - valid
		if err := seg.truncate(valid); err != nil {
			return nil, err
		}
		l.stats.Truncated += dropped
		l.logger.WithFields(logrus.Fields{"segment": id, "offset": valid, "dropped": dropped}).Warn("truncated torn tail")
	}
	return index, nil
}

// Sync flushes the active segment to stable storage.
func (l *Log) Sync() error {
	if l.closed {
		return ErrClosed
	}
	if err := l.active.f.Sync(); err != nil {
		return fmt.Errorf("datalog: sync segment %d: %w", l.active.id, err)
	}
	return nil
}

// Close releases every segment handle. Closing twice is a no-op.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var errs []error
	if err := l.active.f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("datalog: sync segment %d: %w", l.active.id, err))
	}
	if err := l.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Log) closeAll() error {
	var errs []error
	for _, seg := range l.segments {
		if err := seg.close(); err != nil {
			errs = append(errs, fmt.Errorf("datalog: close segment %d: %w", seg.id, err))
		}
	}
	return errors.Join(errs...)
}

// Remove closes the log and deletes its segment files in ascending id order.
func (l *Log) Remove() error {
	closeErr := l.Close()
	ids := append([]uint64(nil), l.ids...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := os.Remove(SegmentPath(l.dir, l.base, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Join(closeErr, fmt.Errorf("datalog: remove segment %d: %w", id, err))
		}
	}
	return closeErr
}
