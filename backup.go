package bitcask

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/snapshot"
)

// Snapshot writes every live pair to w, in key order, as a snapshot stream.
func (db *DB) Snapshot(w io.Writer) (snapshot.Trailer, error) {
	if db.closed {
		return snapshot.Trailer{}, ErrClosed
	}
	trailer, err := snapshot.Write(w, db, db.dir)
	if err != nil {
		return trailer, fmt.Errorf("bitcask: snapshot: %w", err)
	}
	db.logger.WithFields(logrus.Fields{"keys": trailer.Count, "digest": fmt.Sprintf("%016x", trailer.Digest)}).Debug("wrote snapshot")
	return trailer, nil
}

// Restore opens the store in dir and writes every pair of the snapshot read
// from r into it. Existing keys not present in the snapshot are kept.
func Restore(dir string, r io.Reader, opts ...Option) (*DB, error) {
	db, err := Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	header, trailer, err := snapshot.Read(r, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bitcask: restore: %w", err)
	}
	if err := db.Sync(); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.logger.WithFields(logrus.Fields{"keys": trailer.Count, "source": header.Source}).Info("restored snapshot")
	return db, nil
}
