package snapshot

import (
	"fmt"
	"time"

	"github.com/viant/bintly"
)

const (
	magic   = "bitcask-snapshot"
	version = 1
)

// Header opens every snapshot stream.
type Header struct {
	Magic   string
	Version int
	Source  string // directory the snapshot was taken from
	Created time.Time
}

// EncodeBinary encodes data from binary stream
func (h *Header) EncodeBinary(stream *bintly.Writer) error {
	stream.String(h.Magic)
	stream.Int(h.Version)
	stream.String(h.Source)
	stream.Time(h.Created)
	return nil
}

// DecodeBinary decodes data to binary stream
func (h *Header) DecodeBinary(stream *bintly.Reader) error {
	stream.String(&h.Magic)
	stream.Int(&h.Version)
	stream.String(&h.Source)
	stream.Time(&h.Created)
	return nil
}

// batch carries a run of consecutive key/value pairs.
type batch struct {
	keys   [][]byte
	values [][]byte
	limit  int // payload bytes available to DecodeBinary
}

func (b *batch) add(key, value []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
	b.values = append(b.values, append([]byte{}, value...))
}

func (b *batch) len() int {
	return len(b.keys)
}

func (b *batch) reset() {
	b.keys = b.keys[:0]
	b.values = b.values[:0]
}

// EncodeBinary encodes data from binary stream
func (b *batch) EncodeBinary(stream *bintly.Writer) error {
	stream.Int(len(b.keys))
	for i := range b.keys {
		stream.Uint8s(b.keys[i])
		stream.Uint8s(b.values[i])
	}
	return nil
}

// DecodeBinary decodes data to binary stream
func (b *batch) DecodeBinary(stream *bintly.Reader) error {
	var size int
	stream.Int(&size)
	// every pair takes at least one payload byte
	if size < 0 || size > b.limit {
		return fmt.Errorf("snapshot: batch of %d pairs in %d bytes: %w", size, b.limit, ErrFormat)
	}
	b.keys = make([][]byte, size)
	b.values = make([][]byte, size)
	for i := 0; i < size; i++ {
		stream.Uint8s(&b.keys[i])
		stream.Uint8s(&b.values[i])
		if b.keys[i] == nil {
			b.keys[i] = []byte{}
		}
		if b.values[i] == nil {
			b.values[i] = []byte{}
		}
	}
	return nil
}

// Trailer closes a snapshot stream.
type Trailer struct {
	Count  int
	Digest uint64 // fingerprint of all pairs in stream order
}

// EncodeBinary encodes data from binary stream
func (t *Trailer) EncodeBinary(stream *bintly.Writer) error {
	stream.Int(t.Count)
	stream.Uint64(t.Digest)
	return nil
}

// DecodeBinary decodes data to binary stream
func (t *Trailer) DecodeBinary(stream *bintly.Reader) error {
	stream.Int(&t.Count)
	stream.Uint64(&t.Digest)
	return nil
}
