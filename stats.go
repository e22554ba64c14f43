package bitcask

import (
	"github.com/viant/bitcask/keydir"
	"github.com/viant/bitcask/record"
)

// Stats exposes store size and activity counters.
type Stats struct {
	// Number of live keys
	Keys int `json:"keys"`
	// Number of segment files and the id receiving writes
	Segments      int    `json:"segments"`
	ActiveSegment uint64 `json:"activeSegment"`
	// Total bytes across all segments
	DiskSize int64 `json:"diskSize"`
	// Bytes held by the latest frame of each live key; the rest is reclaimable by Merge
	LiveBytes int64 `json:"liveBytes"`
	DeadBytes int64 `json:"deadBytes"`
	// Records appended since Open, tombstones included
	Appends      uint64 `json:"appends"`
	Tombstones   uint64 `json:"tombstones"`
	BytesWritten uint64 `json:"bytesWritten"`
	BytesRead    uint64 `json:"bytesRead"`
	Merges       uint64 `json:"merges"`
	// Bytes cut from a torn tail on Open
	Truncated int64 `json:"truncated,omitempty"`
}

// Stats returns the current counters. It walks the index to compute live bytes.
func (db *DB) Stats() (Stats, error) {
	if db.closed {
		return Stats{}, ErrClosed
	}
	logStats := db.log.Stats()
	stats := Stats{
		Keys:          db.index.Len(),
		Segments:      logStats.Segments,
		ActiveSegment: logStats.ActiveID,
		DiskSize:      logStats.Size,
		Appends:       db.appends,
		Tombstones:    db.tombstones,
		BytesWritten:  db.bytesWritten,
		BytesRead:     db.bytesRead,
		Merges:        db.merges,
		Truncated:     db.truncated,
	}
	db.index.Ascend(func(key []byte, loc keydir.Location) bool {
		stats.LiveBytes += record.Size(len(key), int(loc.Length))
		return true
	})
	stats.DeadBytes = stats.DiskSize - stats.LiveBytes
	return stats, nil
}
