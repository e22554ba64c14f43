// Package bitcask is a log-structured key-value store.
//
// Writes are appended to segment files named {base}.{id}.data in a single
// directory; an in-memory index maps every live key to the segment, offset
// and length of its latest value. The index is rebuilt from the segments on
// Open. Merge rewrites only live values into fresh segments and drops the
// old ones.
//
// A DB is not safe for concurrent use. Wrap it with NewLocked when several
// goroutines share one instance. A directory lock keeps a second process
// from opening the same store.
//
//	db, err := bitcask.Open(dir)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//	if err := db.Set([]byte("k1"), []byte{1, 2, 3}); err != nil {
//		return err
//	}
//	value, ok, err := db.Get([]byte("k1"))
package bitcask
