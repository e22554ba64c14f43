// Package snapshot writes and reads portable backups of a store's live
// key/value pairs.
//
// A snapshot is a sequence of frames, each a kind byte, a big-endian uint32
// payload length and a bintly-encoded payload: one header, any number of
// batches, and a trailer carrying the pair count and a HighwayHash digest
// that Read verifies.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/viant/bintly"
	"github.com/viant/bitcask/fingerprint"
)

const (
	kindHeader  byte = 'H'
	kindBatch   byte = 'B'
	kindTrailer byte = 'T'

	// BatchSize is the number of pairs grouped into one frame.
	BatchSize = 256

	maxFrame = 1 << 31
)

var (
	// ErrFormat is returned for streams that are not snapshots or are damaged.
	ErrFormat = errors.New("snapshot: invalid format")

	// ErrDigest is returned when the restored pairs do not match the trailer.
	ErrDigest = errors.New("snapshot: digest mismatch")
)

// Source provides the pairs to back up, in key order.
type Source interface {
	Fold(fn func(key, value []byte) error) error
}

// Sink receives restored pairs.
type Sink interface {
	Set(key, value []byte) error
}

type coder interface {
	EncodeBinary(stream *bintly.Writer) error
}

type decoder interface {
	DecodeBinary(stream *bintly.Reader) error
}

// Writer streams pairs into a snapshot.
type Writer struct {
	w       *bufio.Writer
	writers *bintly.Writers
	batch   batch
	digest  *fingerprint.Digest
	closed  bool
}

// NewWriter writes the snapshot header to w.
func NewWriter(w io.Writer, source string) (*Writer, error) {
	digest, err := fingerprint.New()
	if err != nil {
		return nil, err
	}
	sw := &Writer{w: bufio.NewWriter(w), writers: bintly.NewWriters(), digest: digest}
	header := &Header{Magic: magic, Version: version, Source: source, Created: time.Now().UTC()}
	if err := sw.frame(kindHeader, header); err != nil {
		return nil, err
	}
	return sw, nil
}

// Add appends one pair. Key and value are copied.
func (w *Writer) Add(key, value []byte) error {
	if w.closed {
		return fmt.Errorf("snapshot: writer closed")
	}
	w.batch.add(key, value)
	w.digest.Add(key, value)
	if w.batch.len() >= BatchSize {
		return w.flushBatch()
	}
	return nil
}

func (w *Writer) flushBatch() error {
	if w.batch.len() == 0 {
		return nil
	}
	if err := w.frame(kindBatch, &w.batch); err != nil {
		return err
	}
	w.batch.reset()
	return nil
}

// Close writes the trailer and flushes; it does not close the underlying writer.
func (w *Writer) Close() (Trailer, error) {
	trailer := Trailer{Count: w.digest.Count(), Digest: w.digest.Sum64()}
	if w.closed {
		return trailer, nil
	}
	w.closed = true
	if err := w.flushBatch(); err != nil {
		return trailer, err
	}
	if err := w.frame(kindTrailer, &trailer); err != nil {
		return trailer, err
	}
	if err := w.w.Flush(); err != nil {
		return trailer, fmt.Errorf("snapshot: flush: %w", err)
	}
	return trailer, nil
}

func (w *Writer) frame(kind byte, c coder) error {
	stream := w.writers.Get()
	defer w.writers.Put(stream)
	if err := c.EncodeBinary(stream); err != nil {
		return fmt.Errorf("snapshot: encode %c: %w", kind, err)
	}
	payload := stream.Bytes()
	var prefix [5]byte
	prefix[0] = kind
	binary.BigEndian.PutUint32(prefix[1:], uint32(len(payload)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return nil
}

// Write backs up every pair of src to w.
func Write(w io.Writer, src Source, source string) (Trailer, error) {
	sw, err := NewWriter(w, source)
	if err != nil {
		return Trailer{}, err
	}
	if err := src.Fold(sw.Add); err != nil {
		return Trailer{}, err
	}
	return sw.Close()
}

// Read restores every pair from r into sink and verifies the trailer.
func Read(r io.Reader, sink Sink) (*Header, Trailer, error) {
	br := bufio.NewReader(r)
	readers := bintly.NewReaders()
	header := &Header{}
	kind, err := readFrame(br, readers, header)
	if err != nil {
		return nil, Trailer{}, err
	}
	if kind != kindHeader || header.Magic != magic {
		return nil, Trailer{}, fmt.Errorf("snapshot: missing header: %w", ErrFormat)
	}
	if header.Version != version {
		return nil, Trailer{}, fmt.Errorf("snapshot: version %d: %w", header.Version, ErrFormat)
	}
	digest, err := fingerprint.New()
	if err != nil {
		return nil, Trailer{}, err
	}
	for {
		var b batch
		var trailer Trailer
		kind, payload, err := nextFrame(br)
		if err != nil {
			return header, Trailer{}, err
		}
		switch kind {
		case kindBatch:
			b.limit = len(payload)
			if err := decode(readers, payload, &b); err != nil {
				return header, Trailer{}, err
			}
			for i := range b.keys {
				digest.Add(b.keys[i], b.values[i])
				if err := sink.Set(b.keys[i], b.values[i]); err != nil {
					return header, Trailer{}, fmt.Errorf("snapshot: restore %q: %w", b.keys[i], err)
				}
			}
		case kindTrailer:
			if err := decode(readers, payload, &trailer); err != nil {
				return header, Trailer{}, err
			}
			if trailer.Count != digest.Count() || trailer.Digest != digest.Sum64() {
				return header, trailer, fmt.Errorf("snapshot: %d pairs, trailer says %d: %w", digest.Count(), trailer.Count, ErrDigest)
			}
			return header, trailer, nil
		default:
			return header, Trailer{}, fmt.Errorf("snapshot: unexpected %q frame: %w", kind, ErrFormat)
		}
	}
}

func readFrame(r *bufio.Reader, readers *bintly.Readers, d decoder) (byte, error) {
	kind, payload, err := nextFrame(r)
	if err != nil {
		return 0, err
	}
	return kind, decode(readers, payload, d)
}

func nextFrame(r *bufio.Reader) (byte, []byte, error) {
	var prefix [5]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, nil, fmt.Errorf("snapshot: read frame: %w: %w", ErrFormat, err)
	}
	switch prefix[0] {
	case kindHeader, kindBatch, kindTrailer:
	default:
		return 0, nil, fmt.Errorf("snapshot: frame kind %q: %w", prefix[0], ErrFormat)
	}
	size := binary.BigEndian.Uint32(prefix[1:])
	if size >= maxFrame {
		return 0, nil, fmt.Errorf("snapshot: frame of %d bytes: %w", size, ErrFormat)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("snapshot: read frame: %w: %w", ErrFormat, err)
	}
	return prefix[0], payload, nil
}

func decode(readers *bintly.Readers, payload []byte, d decoder) (err error) {
	stream := readers.Get()
	defer readers.Put(stream)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot: decode: %v: %w", r, ErrFormat)
		}
	}()
	if err := stream.FromBytes(payload); err != nil {
		return fmt.Errorf("snapshot: decode: %w: %w", ErrFormat, err)
	}
	return d.DecodeBinary(stream)
}
