// Package keydir implements the in-memory index of a bitcask log: an ordered
// mapping from key to the location of its most recent value.
//
// The index is held in an immutable radix tree. Mutations go through a single
// open transaction, so a KeyDir can be rebuilt or replaced wholesale without
// disturbing a previously taken Snapshot.
package keydir

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

// Location identifies a value within a segment.
type Location struct {
	SegmentID uint64 `json:"segmentId"`
	Offset    int64  `json:"offset"` // absolute offset of the value bytes
	Length    uint32 `json:"length"`
}

// KeyDir maps keys to value locations. It is not safe for concurrent use.
type KeyDir struct {
	txn  *iradix.Txn
	size int
}

// New returns an empty KeyDir.
func New() *KeyDir {
	return &KeyDir{txn: iradix.New().Txn()}
}

// Put inserts or replaces the location for key. The key slice is retained.
func (k *KeyDir) Put(key []byte, loc Location) {
	if _, updated := k.txn.Insert(key, loc); !updated {
		k.size++
	}
}

// Remove deletes key and reports whether it was present.
func (k *KeyDir) Remove(key []byte) bool {
	if _, deleted := k.txn.Delete(key); deleted {
		k.size--
		return true
	}
	return false
}

// Get returns the location for key.
func (k *KeyDir) Get(key []byte) (Location, bool) {
	v, ok := k.txn.Get(key)
	if !ok {
		return Location{}, false
	}
	return v.(Location), true
}

// Len returns the number of live keys.
func (k *KeyDir) Len() int {
	return k.size
}

// Ascend calls fn for every key in lexicographic order until fn returns false.
func (k *KeyDir) Ascend(fn func(key []byte, loc Location) bool) {
	k.txn.Root().Walk(func(key []byte, v interface{}) bool {
		return !fn(key, v.(Location))
	})
}

// Snapshot returns a point-in-time view that later mutations do not affect.
func (k *KeyDir) Snapshot() *Snapshot {
	tree := k.txn.Commit()
	k.txn = tree.Txn()
	return &Snapshot{tree: tree}
}

// Snapshot is a read-only, ordered view of a KeyDir.
type Snapshot struct {
	tree *iradix.Tree
}

// Len returns the number of keys in the snapshot.
func (s *Snapshot) Len() int {
	return s.tree.Len()
}

// Get returns the location for key.
func (s *Snapshot) Get(key []byte) (Location, bool) {
	v, ok := s.tree.Get(key)
	if !ok {
		return Location{}, false
	}
	return v.(Location), true
}

// Ascend calls fn for every key in lexicographic order until fn returns false.
func (s *Snapshot) Ascend(fn func(key []byte, loc Location) bool) {
	s.tree.Root().Walk(func(key []byte, v interface{}) bool {
		return !fn(key, v.(Location))
	})
}
