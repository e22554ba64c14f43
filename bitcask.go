package bitcask

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/datalog"
	"github.com/viant/bitcask/fingerprint"
	"github.com/viant/bitcask/keydir"
	"github.com/viant/bitcask/lock"
	"github.com/viant/bitcask/record"
)

const (
	lockExt     = ".lock"
	mergeSuffix = ".merge"
)

// DB is a single bitcask store. It is not safe for concurrent use.
type DB struct {
	dir    string
	opts   *options
	logger *logrus.Entry
	lock   *lock.File
	log    *datalog.Log
	index  *keydir.KeyDir
	closed bool

	appends      uint64
	tombstones   uint64
	bytesWritten uint64
	bytesRead    uint64
	merges       uint64
	truncated    int64
}

// Open opens or creates the store in dir and rebuilds its index from the
// segment files found there.
func Open(dir string, opts ...Option) (*DB, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bitcask: create dir %s: %w", dir, err)
	}
	lk, err := lock.TryAcquire(filepath.Join(dir, o.baseName+lockExt))
	if err != nil {
		return nil, fmt.Errorf("bitcask: open %s: %w", dir, err)
	}
	db := &DB{
		dir:    dir,
		opts:   o,
		logger: o.logger.WithFields(logrus.Fields{"dir": dir, "base": o.baseName}),
		lock:   lk,
	}
	if err := db.load(); err != nil {
		_ = lk.Release()
		return nil, err
	}
	db.logger.WithFields(logrus.Fields{"keys": db.index.Len(), "segments": len(db.log.Segments())}).Debug("opened store")
	return db, nil
}

func (db *DB) load() error {
	if err := datalog.RemoveSegments(db.dir, db.mergeBase()); err != nil {
		return fmt.Errorf("bitcask: remove stale merge files: %w", err)
	}
	log, err := datalog.Open(db.dir, db.opts.baseName, db.logOptions(0))
	if err != nil {
		return err
	}
	index, err := log.LoadIndex()
	if err != nil {
		_ = log.Close()
		return err
	}
	db.truncated += log.Stats().Truncated
	db.log = log
	db.index = index
	return nil
}

func (db *DB) logOptions(firstID uint64) datalog.Options {
	return datalog.Options{
		SegmentSize: db.opts.segmentSize,
		FirstID:     firstID,
		SyncWrites:  db.opts.syncWrites,
		Logger:      db.logger,
	}
}

func (db *DB) mergeBase() string {
	return db.opts.baseName + mergeSuffix
}

// Dir returns the store directory.
func (db *DB) Dir() string {
	return db.dir
}

// Set stores value under key, replacing any previous value.
func (db *DB) Set(key, value []byte) error {
	if db.closed {
		return ErrClosed
	}
	pos, err := writeValue(db.log, db.index, key, value)
	if err != nil {
		return fmt.Errorf("bitcask: set: %w", err)
	}
	db.appends++
	db.bytesWritten += uint64(pos.Size)
	return nil
}

// writeValue appends a value record to log and points index at it.
func writeValue(log *datalog.Log, index *keydir.KeyDir, key, value []byte) (datalog.Position, error) {
	pos, err := log.Write(record.NewValue(key, value))
	if err != nil {
		return pos, err
	}
	index.Put(append([]byte(nil), key...), keydir.Location{
		SegmentID: pos.SegmentID,
		Offset:    pos.Offset + pos.Size - int64(len(value)),
		Length:    uint32(len(value)),
	})
	return pos, nil
}

// Get returns the value stored under key. A missing key yields
// (nil, false, nil) without touching the disk.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	if db.closed {
		return nil, false, ErrClosed
	}
	loc, ok := db.index.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, err := db.read(loc)
	if err != nil {
		return nil, false, fmt.Errorf("bitcask: get: %w", err)
	}
	return value, true, nil
}

func (db *DB) read(loc keydir.Location) ([]byte, error) {
	value, err := db.log.ReadValue(loc.SegmentID, loc.Offset, loc.Length)
	if err != nil {
		return nil, err
	}
	db.bytesRead += uint64(loc.Length)
	return value, nil
}

// Has reports whether key holds a live value.
func (db *DB) Has(key []byte) (bool, error) {
	if db.closed {
		return false, ErrClosed
	}
	_, ok := db.index.Get(key)
	return ok, nil
}

// Delete removes key. A tombstone is appended even when the key is absent.
func (db *DB) Delete(key []byte) error {
	if db.closed {
		return ErrClosed
	}
	pos, err := db.log.Write(record.NewTombstone(key))
	if err != nil {
		return fmt.Errorf("bitcask: delete: %w", err)
	}
	db.index.Remove(key)
	db.appends++
	db.tombstones++
	db.bytesWritten += uint64(pos.Size)
	return nil
}

// Len returns the number of live keys.
func (db *DB) Len() int {
	if db.closed {
		return 0
	}
	return db.index.Len()
}

// Ascend calls fn for every live key in lexicographic order until fn
// returns false. The iteration runs over a snapshot, so fn may modify the
// store. Each key passed to fn is a copy the caller owns.
func (db *DB) Ascend(fn func(key []byte) bool) error {
	if db.closed {
		return ErrClosed
	}
	db.index.Snapshot().Ascend(func(key []byte, _ keydir.Location) bool {
		return fn(append([]byte(nil), key...))
	})
	return nil
}

// Keys returns every live key in lexicographic order.
func (db *DB) Keys() ([][]byte, error) {
	keys := make([][]byte, 0, db.Len())
	err := db.Ascend(func(key []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// Fold calls fn with every live pair in key order, stopping at the first error.
// The key passed to fn is a copy.
func (db *DB) Fold(fn func(key, value []byte) error) error {
	if db.closed {
		return ErrClosed
	}
	var err error
	db.index.Snapshot().Ascend(func(key []byte, loc keydir.Location) bool {
		var value []byte
		if value, err = db.read(loc); err != nil {
			err = fmt.Errorf("bitcask: fold %q: %w", key, err)
			return false
		}
		err = fn(append([]byte(nil), key...), value)
		return err == nil
	})
	return err
}

// Digest returns a HighwayHash fingerprint of all live pairs in key order.
// Stores with equal contents have equal digests regardless of their on-disk
// history.
func (db *DB) Digest() (uint64, error) {
	d, err := fingerprint.New()
	if err != nil {
		return 0, err
	}
	if err := db.Fold(func(key, value []byte) error {
		d.Add(key, value)
		return nil
	}); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// Sync flushes the active segment to stable storage.
func (db *DB) Sync() error {
	if db.closed {
		return ErrClosed
	}
	return db.log.Sync()
}

// Close syncs and closes all segments and releases the directory lock.
// Closing twice is a no-op.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	var errs []error
	if db.log != nil {
		if err := db.log.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("bitcask: release lock: %w", err))
	}
	db.logger.Debug("closed store")
	return errors.Join(errs...)
}
