package bitcask

import "sync"

// Locked serializes every call on a DB behind one mutex, for callers that
// share a store across goroutines.
type Locked struct {
	mu sync.Mutex
	db *DB
}

// NewLocked wraps db. The caller must stop using db directly.
func NewLocked(db *DB) *Locked {
	return &Locked{db: db}
}

// OpenLocked opens the store in dir and wraps it.
func OpenLocked(dir string, opts ...Option) (*Locked, error) {
	db, err := Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return NewLocked(db), nil
}

func (l *Locked) Set(key, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Set(key, value)
}

func (l *Locked) Get(key []byte) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Get(key)
}

func (l *Locked) Has(key []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Has(key)
}

func (l *Locked) Delete(key []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(key)
}

func (l *Locked) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Len()
}

func (l *Locked) Keys() ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Keys()
}

// Fold holds the lock for the whole iteration; fn must not call back into l.
func (l *Locked) Fold(fn func(key, value []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Fold(fn)
}

func (l *Locked) Digest() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Digest()
}

func (l *Locked) Merge() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Merge()
}

func (l *Locked) Stats() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Stats()
}

func (l *Locked) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Sync()
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
