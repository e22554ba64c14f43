package bitcask

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/viant/bitcask/datalog"
	"github.com/viant/bitcask/keydir"
)

func TestDB_Merge(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	for _, key := range []string{"a", "b", "c"} {
		if err := db.Set([]byte(key), []byte("v"+key)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Delete([]byte("b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	before, err := db.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if err := db.Merge(); err != nil {
		t.Fatalf("merge: %v", err)
	}

	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if fmt.Sprintf("%q", keys) != `["a" "c"]` {
		t.Fatalf("keys after merge = %q", keys)
	}
	if string(mustGet(t, db, "a")) != "va" || string(mustGet(t, db, "c")) != "vc" {
		t.Fatalf("values changed by merge")
	}
	if ok, _ := db.Has([]byte("b")); ok {
		t.Fatalf("deleted key survived merge")
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DeadBytes != 0 || stats.Merges != 1 {
		t.Fatalf("after merge: %+v", stats)
	}
	if stats.ActiveSegment != 1 {
		t.Fatalf("merged segments start at %d, want 1", stats.ActiveSegment)
	}
	after, _ := db.Digest()
	if after != before {
		t.Fatalf("digest changed by merge: %x != %x", after, before)
	}
	_ = db.Close()

	if _, err := os.Stat(filepath.Join(dir, "log.0.data")); !os.IsNotExist(err) {
		t.Fatalf("old segment still present: %v", err)
	}
	ids, err := datalog.ListSegments(dir, "log.merge")
	if err != nil || len(ids) != 0 {
		t.Fatalf("merge files left: %v, %v", ids, err)
	}

	db = openDB(t, dir)
	defer db.Close()
	reopened, err := db.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if reopened != before || db.Len() != 2 {
		t.Fatalf("reopen after merge: digest %x len %d", reopened, db.Len())
	}
	if err := db.Set([]byte("d"), []byte("vd")); err != nil {
		t.Fatalf("set after merge: %v", err)
	}
	if string(mustGet(t, db, "d")) != "vd" {
		t.Fatalf("write after merge lost")
	}
}

func TestDB_MergeRotated(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, WithSegmentSize(128))
	for round := 0; round < 5; round++ {
		for i := 0; i < 30; i++ {
			key := []byte(fmt.Sprintf("key-%02d", i))
			if err := db.Set(key, []byte(fmt.Sprintf("round-%d-%d", round, i))); err != nil {
				t.Fatalf("set: %v", err)
			}
		}
	}
	for i := 0; i < 30; i += 3 {
		if err := db.Delete([]byte(fmt.Sprintf("key-%02d", i))); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	before, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	digest, _ := db.Digest()
	if err := db.Merge(); err != nil {
		t.Fatalf("merge: %v", err)
	}
	after, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if after.Keys != 20 || after.DiskSize != before.LiveBytes || after.DiskSize >= before.DiskSize {
		t.Fatalf("before %+v after %+v", before, after)
	}
	if after.Segments < 2 {
		t.Fatalf("merged output not rotated: %d segments", after.Segments)
	}
	_ = db.Close()

	ids, err := datalog.ListSegments(dir, "log")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids[0] <= before.ActiveSegment {
		t.Fatalf("merged ids %v do not continue past %d", ids, before.ActiveSegment)
	}

	db = openDB(t, dir, WithSegmentSize(128))
	defer db.Close()
	got, _ := db.Digest()
	if got != digest {
		t.Fatalf("digest after reopen %x, want %x", got, digest)
	}
	if string(mustGet(t, db, "key-29")) != "round-4-29" {
		t.Fatalf("key-29 lost latest value")
	}
}

func TestDB_MergeEmpty(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	if err := db.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.Merge(); err != nil {
		t.Fatalf("merge: %v", err)
	}
	stats, _ := db.Stats()
	if stats.Keys != 0 || stats.DiskSize != 0 || stats.Segments != 1 {
		t.Fatalf("after empty merge: %+v", stats)
	}
	_ = db.Close()
	db = openDB(t, dir)
	defer db.Close()
	if db.Len() != 0 {
		t.Fatalf("len = %d after reopen", db.Len())
	}
}

func TestOpen_RemovesStaleMergeFiles(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	if err := db.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = db.Close()
	stale := datalog.SegmentPath(dir, "log.merge", 1)
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	db = openDB(t, dir)
	defer db.Close()
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale merge file kept: %v", err)
	}
	if string(mustGet(t, db, "a")) != "1" {
		t.Fatalf("data lost")
	}
}

func TestDB_MergeFailureKeepsOldLog(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, WithSegmentSize(64))
	if err := db.Set([]byte("a"), []byte("va")); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%02d", i)
		if err := db.Set([]byte(key), []byte("v"+key)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	segments := db.log.Segments()
	// "zzz" sorts last, so the rewrite fails after filling merge segments
	db.index.Put([]byte("zzz"), keydir.Location{SegmentID: 999, Offset: 0, Length: 1})

	err := db.Merge()
	if err == nil {
		t.Fatalf("merge with dangling index entry succeeded")
	}
	if !errors.Is(err, ErrSegmentNotFound) || !IsNotFound(err) {
		t.Fatalf("merge err = %v, want ErrSegmentNotFound", err)
	}
	ids, err := datalog.ListSegments(dir, db.mergeBase())
	if err != nil {
		t.Fatalf("list merge segments: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("merge segments left behind: %v", ids)
	}
	if got := db.log.Segments(); fmt.Sprint(got) != fmt.Sprint(segments) {
		t.Fatalf("segments after failed merge = %v, want %v", got, segments)
	}
	if string(mustGet(t, db, "a")) != "va" || string(mustGet(t, db, "k09")) != "vk09" {
		t.Fatalf("old values unreadable after failed merge")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openDB(t, dir, WithSegmentSize(64))
	defer db.Close()
	if db.Len() != 11 {
		t.Fatalf("len after reopen = %d, want 11", db.Len())
	}
	if string(mustGet(t, db, "k05")) != "vk05" {
		t.Fatalf("k05 lost after failed merge")
	}
}
