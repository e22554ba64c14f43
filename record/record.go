package record

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Layout of a single log entry:
//
//	[key_len:u32 BE][value_len:i32 BE][key][value]
//
// A negative value_len marks a tombstone; no value bytes follow it.
const (
	// FieldSize is the width of each fixed header field.
	FieldSize = 4
	// HeaderSize is the fixed header length preceding the key bytes.
	HeaderSize = 2 * FieldSize
	// Tombstone is the value_len sentinel written for deletes.
	Tombstone int32 = -1
)

// Record is a decoded or to-be-encoded log entry.
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// NewValue returns a value record.
func NewValue(key, value []byte) *Record {
	return &Record{Key: key, Value: value}
}

// NewTombstone returns a delete marker for key.
func NewTombstone(key []byte) *Record {
	return &Record{Key: key, Tombstone: true}
}

// Size returns the encoded frame length.
func (r *Record) Size() int64 {
	if r.Tombstone {
		return Size(len(r.Key), -1)
	}
	return Size(len(r.Key), len(r.Value))
}

// ValueOffset returns the distance from the frame start to the value bytes.
func (r *Record) ValueOffset() int64 {
	return HeaderSize + int64(len(r.Key))
}

// Size returns the frame length for the given key length and value length;
// a negative valueLen denotes a tombstone.
func Size(keyLen, valueLen int) int64 {
	size := int64(HeaderSize) + int64(keyLen)
	if valueLen > 0 {
		size += int64(valueLen)
	}
	return size
}

// Encode serializes r into a new frame.
func Encode(r *Record) ([]byte, error) {
	if uint64(len(r.Key)) > math.MaxUint32 {
		return nil, fmt.Errorf("record: key length %d: %w", len(r.Key), ErrTooLarge)
	}
	if !r.Tombstone && len(r.Value) > math.MaxInt32 {
		return nil, fmt.Errorf("record: value length %d: %w", len(r.Value), ErrTooLarge)
	}
	buf := make([]byte, r.Size())
	binary.BigEndian.PutUint32(buf[0:FieldSize], uint32(len(r.Key)))
	valueLen := Tombstone
	if !r.Tombstone {
		valueLen = int32(len(r.Value))
	}
	binary.BigEndian.PutUint32(buf[FieldSize:HeaderSize], uint32(valueLen))
	n := copy(buf[HeaderSize:], r.Key)
	if !r.Tombstone {
		copy(buf[HeaderSize+n:], r.Value)
	}
	return buf, nil
}

// Header holds the fixed fields of a frame.
type Header struct {
	KeyLen   uint32
	ValueLen int32
}

// IsTombstone reports whether the header marks a delete.
func (h Header) IsTombstone() bool {
	return h.ValueLen < 0
}

// Size returns the full frame length described by h.
func (h Header) Size() int64 {
	return Size(int(h.KeyLen), int(h.ValueLen))
}

// DecodeHeader reads the two fixed header fields from r. A stream ending
// before the first byte returns io.EOF; ending mid-header returns
// io.ErrUnexpectedEOF.
func DecodeHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:]), nil
}

// ParseHeader decodes a header from the first HeaderSize bytes of data.
func ParseHeader(data []byte) Header {
	return Header{
		KeyLen:   binary.BigEndian.Uint32(data[0:FieldSize]),
		ValueLen: int32(binary.BigEndian.Uint32(data[FieldSize:HeaderSize])),
	}
}
