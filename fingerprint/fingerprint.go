// Package fingerprint computes HighwayHash digests of store contents.
package fingerprint

import (
	"encoding/binary"
	"hash"

	"github.com/minio/highwayhash"
)

var key = []byte("0123456789ABCDEF0123456789ABCDEF")

// Sum64 creates a hash for the input data
func Sum64(data []byte) (uint64, error) {
	h, err := highwayhash.New64(key)
	if err != nil {
		return 0, err
	}
	if _, err = h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Digest accumulates an order-sensitive hash over key/value pairs. Each pair
// is length-prefixed, so ("ab","c") and ("a","bc") hash differently.
type Digest struct {
	h     hash.Hash64
	count int
}

// New returns an empty Digest.
func New() (*Digest, error) {
	h, err := highwayhash.New64(key)
	if err != nil {
		return nil, err
	}
	return &Digest{h: h}, nil
}

// Add folds one pair into the digest.
func (d *Digest) Add(k, v []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(k)))
	_, _ = d.h.Write(size[:])
	_, _ = d.h.Write(k)
	binary.BigEndian.PutUint32(size[:], uint32(len(v)))
	_, _ = d.h.Write(size[:])
	_, _ = d.h.Write(v)
	d.count++
}

// Count returns the number of pairs added.
func (d *Digest) Count() int {
	return d.count
}

// Sum64 returns the digest value.
func (d *Digest) Sum64() uint64 {
	return d.h.Sum64()
}
