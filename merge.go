package bitcask

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/datalog"
	"github.com/viant/bitcask/keydir"
)

// Merge compacts the store: every live value is rewritten, in key order,
// into new segments that continue the id sequence, and the old segments are
// deleted. Tombstones and superseded values are dropped.
//
// If rewriting fails the store keeps serving from its old segments and the
// partial merge files are removed.
func (db *DB) Merge() error {
	if db.closed {
		return ErrClosed
	}
	started := time.Now()
	old := db.log
	sizeBefore := old.Size()
	segmentsBefore := len(old.Segments())
	mergeBase := db.mergeBase()

	if err := datalog.RemoveSegments(db.dir, mergeBase); err != nil {
		return fmt.Errorf("bitcask: merge: %w", err)
	}
	merged, err := datalog.Open(db.dir, mergeBase, db.logOptions(old.ActiveID()+1))
	if err != nil {
		return fmt.Errorf("bitcask: merge: %w", err)
	}
	index := keydir.New()
	if err := db.rewrite(merged, index); err != nil {
		return errors.Join(fmt.Errorf("bitcask: merge: %w", err), merged.Remove())
	}
	if err := merged.Close(); err != nil {
		return errors.Join(fmt.Errorf("bitcask: merge: %w", err), merged.Remove())
	}
	if err := promote(db.dir, mergeBase, db.opts.baseName, merged.Segments()); err != nil {
		return errors.Join(fmt.Errorf("bitcask: merge: %w", err), datalog.RemoveSegments(db.dir, mergeBase))
	}

	// Old segments are removed in ascending id order, so whatever a crash
	// leaves behind is a suffix of the old history. Replaying such a suffix
	// before the merged segments cannot resurrect a deleted key.
	var cleanupErr error
	if err := old.Remove(); err != nil {
		cleanupErr = fmt.Errorf("bitcask: merge: remove old segments: %w", err)
		db.logger.WithError(err).Warn("merge left old segments behind")
	}
	db.log = nil
	log, err := datalog.Open(db.dir, db.opts.baseName, db.logOptions(0))
	if err != nil {
		db.closed = true
		_ = db.lock.Release()
		return errors.Join(fmt.Errorf("bitcask: merge: reopen: %w", err), cleanupErr)
	}
	db.log = log
	db.index = index
	db.merges++
	db.logger.WithFields(logrus.Fields{
		"keys":           index.Len(),
		"segmentsBefore": segmentsBefore,
		"segmentsAfter":  len(log.Segments()),
		"sizeBefore":     sizeBefore,
		"sizeAfter":      log.Size(),
		"elapsed":        time.Since(started).String(),
	}).Info("merged store")
	return cleanupErr
}

// rewrite copies every live value of the current store into log, indexing
// it in index.
func (db *DB) rewrite(log *datalog.Log, index *keydir.KeyDir) error {
	var err error
	db.index.Ascend(func(key []byte, loc keydir.Location) bool {
		var value []byte
		if value, err = db.read(loc); err != nil {
			err = fmt.Errorf("read %q: %w", key, err)
			return false
		}
		if _, err = writeValue(log, index, key, value); err != nil {
			err = fmt.Errorf("write %q: %w", key, err)
			return false
		}
		return true
	})
	return err
}

// promote renames merge segments into the live base name. On failure the
// segments renamed so far are moved back.
func promote(dir, from, to string, ids []uint64) error {
	for i, id := range ids {
		if err := os.Rename(datalog.SegmentPath(dir, from, id), datalog.SegmentPath(dir, to, id)); err != nil {
			for _, done := range ids[:i] {
				_ = os.Rename(datalog.SegmentPath(dir, to, done), datalog.SegmentPath(dir, from, done))
			}
			return fmt.Errorf("promote segment %d: %w", id, err)
		}
	}
	return nil
}
