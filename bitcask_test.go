package bitcask

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/viant/bitcask/record"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openDB(t *testing.T, dir string, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	db, err := Open(dir, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func mustGet(t *testing.T, db *DB, key string) []byte {
	t.Helper()
	value, ok, err := db.Get([]byte(key))
	if err != nil {
		t.Fatalf("get %q: %v", key, err)
	}
	if !ok {
		t.Fatalf("get %q: missing", key)
	}
	return value
}

func TestDB_SetGet(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()

	if err := db.Set([]byte("hello"), []byte("world")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mustGet(t, db, "hello"); string(got) != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}
	if err := db.Set([]byte("hello"), []byte("again")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := mustGet(t, db, "hello"); string(got) != "again" {
		t.Fatalf("got %q, want %q", got, "again")
	}
	if db.Len() != 1 {
		t.Fatalf("len = %d, want 1", db.Len())
	}
}

func TestDB_KeyLifecycle(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	key := []byte("k1")

	if err := db.Set(key, []byte{1, 2, 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mustGet(t, db, "k1"); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
	if err := db.Set(key, []byte{4, 5}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mustGet(t, db, "k1"); !bytes.Equal(got, []byte{4, 5}) {
		t.Fatalf("got %v, want [4 5]", got)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	value, ok, err := db.Get(key)
	if err != nil || ok || value != nil {
		t.Fatalf("get deleted: (%v, %v, %v)", value, ok, err)
	}
}

func TestDB_MissingKey(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	value, ok, err := db.Get([]byte("nope"))
	if err != nil || ok || value != nil {
		t.Fatalf("get missing: (%v, %v, %v)", value, ok, err)
	}
	has, err := db.Has([]byte("nope"))
	if err != nil || has {
		t.Fatalf("has missing: (%v, %v)", has, err)
	}
}

func TestDB_EmptyKeyAndValue(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	if err := db.Set([]byte{}, []byte("empty key")); err != nil {
		t.Fatalf("set empty key: %v", err)
	}
	if err := db.Set([]byte("empty value"), []byte{}); err != nil {
		t.Fatalf("set empty value: %v", err)
	}
	_ = db.Close()

	db = openDB(t, dir)
	defer db.Close()
	if got := mustGet(t, db, ""); string(got) != "empty key" {
		t.Fatalf("got %q for empty key", got)
	}
	got := mustGet(t, db, "empty value")
	if got == nil || len(got) != 0 {
		t.Fatalf("empty value came back as %#v", got)
	}
}

func TestDB_DeleteAbsentKeyWritesTombstone(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	if err := db.Delete([]byte("ghost")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tombstones != 1 || stats.Appends != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.DiskSize != record.Size(len("ghost"), -1) {
		t.Fatalf("disk size = %d", stats.DiskSize)
	}
	if stats.LiveBytes != 0 || stats.DeadBytes != stats.DiskSize {
		t.Fatalf("live/dead = %d/%d", stats.LiveBytes, stats.DeadBytes)
	}
}

func TestDB_ReopenIdempotent(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i%20))
		if err := db.Set(key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Delete([]byte("key-03")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	want, err := db.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	_ = db.Close()

	for i := 0; i < 2; i++ {
		db = openDB(t, dir)
		got, err := db.Digest()
		if err != nil {
			t.Fatalf("digest: %v", err)
		}
		if got != want {
			t.Fatalf("reopen %d: digest %x, want %x", i, got, want)
		}
		if db.Len() != 19 {
			t.Fatalf("len = %d, want 19", db.Len())
		}
		if string(mustGet(t, db, "key-09")) != "value-49" {
			t.Fatalf("key-09 lost latest value")
		}
		_ = db.Close()
	}
}

func TestDB_Rotation(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, WithSegmentSize(64))
	for i := 0; i < 20; i++ {
		if err := db.Set([]byte(fmt.Sprintf("k%02d", i)), bytes.Repeat([]byte{byte(i)}, 20)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Segments < 2 {
		t.Fatalf("segments = %d, want rotation", stats.Segments)
	}
	_ = db.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "log.*.data"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != stats.Segments {
		t.Fatalf("%d segment files, want %d", len(matches), stats.Segments)
	}

	db = openDB(t, dir, WithSegmentSize(64))
	defer db.Close()
	for i := 0; i < 20; i++ {
		got := mustGet(t, db, fmt.Sprintf("k%02d", i))
		if !bytes.Equal(got, bytes.Repeat([]byte{byte(i)}, 20)) {
			t.Fatalf("k%02d = %v", i, got)
		}
	}
}

func TestDB_TornTailRecovered(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	if err := db.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = db.Close()

	f, err := os.OpenFile(filepath.Join(dir, "log.0.data"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open seg: %v", err)
	}
	frame, _ := record.Encode(record.NewValue([]byte("b"), []byte("2")))
	if _, err := f.Write(frame[:len(frame)-1]); err != nil {
		t.Fatalf("inject partial frame: %v", err)
	}
	_ = f.Close()

	db = openDB(t, dir)
	defer db.Close()
	if string(mustGet(t, db, "a")) != "1" {
		t.Fatalf("a lost")
	}
	if ok, _ := db.Has([]byte("b")); ok {
		t.Fatalf("partial frame indexed")
	}
	stats, _ := db.Stats()
	if stats.Truncated != int64(len(frame)-1) {
		t.Fatalf("truncated = %d, want %d", stats.Truncated, len(frame)-1)
	}
	if err := db.Set([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("set after recovery: %v", err)
	}
	if string(mustGet(t, db, "b")) != "2" {
		t.Fatalf("b not readable after recovery")
	}
}

func TestDB_CorruptSealedSegment(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir, WithSegmentSize(16))
	for _, key := range []string{"a", "b"} {
		if err := db.Set([]byte(key), []byte("0123456789")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	_ = db.Close()
	f, err := os.OpenFile(filepath.Join(dir, "log.0.data"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open seg: %v", err)
	}
	_, _ = f.Write([]byte{0xff})
	_ = f.Close()

	if _, err := Open(dir, WithLogger(quietLogger()), WithSegmentSize(16)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("open err = %v, want ErrCorrupt", err)
	}
	// a failed open must not keep the directory locked
	if err := os.Truncate(filepath.Join(dir, "log.0.data"), 19); err != nil {
		t.Fatalf("repair: %v", err)
	}
	db = openDB(t, dir, WithSegmentSize(16))
	_ = db.Close()
}

func TestDB_Closed(t *testing.T) {
	db := openDB(t, t.TempDir())
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := db.Set([]byte("k"), []byte("v")); !errors.Is(err, ErrClosed) {
		t.Fatalf("set err = %v", err)
	}
	if _, _, err := db.Get([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("get err = %v", err)
	}
	if err := db.Delete([]byte("k")); !errors.Is(err, ErrClosed) {
		t.Fatalf("delete err = %v", err)
	}
	if err := db.Merge(); !errors.Is(err, ErrClosed) {
		t.Fatalf("merge err = %v", err)
	}
}

func TestDB_DirectoryLocked(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	if _, err := Open(dir, WithLogger(quietLogger())); !errors.Is(err, ErrLocked) {
		t.Fatalf("second open err = %v, want ErrLocked", err)
	}
	_ = db.Close()
	db = openDB(t, dir)
	_ = db.Close()
}

func TestDB_BaseNamesShareDirectory(t *testing.T) {
	dir := t.TempDir()
	users := openDB(t, dir, WithBaseName("users"))
	defer users.Close()
	orders := openDB(t, dir, WithBaseName("orders"))
	defer orders.Close()
	if err := users.Set([]byte("id"), []byte("u1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, _ := orders.Has([]byte("id")); ok {
		t.Fatalf("stores with different base names share keys")
	}
}

func TestDB_KeysAndFold(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	for _, key := range []string{"c", "a", "b"} {
		if err := db.Set([]byte(key), []byte("v"+key)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 || string(keys[0]) != "a" || string(keys[2]) != "c" {
		t.Fatalf("keys = %q", keys)
	}
	var seen []string
	err = db.Fold(func(key, value []byte) error {
		seen = append(seen, string(key)+"="+string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if fmt.Sprint(seen) != "[a=va b=vb c=vc]" {
		t.Fatalf("fold saw %v", seen)
	}
	stop := errors.New("stop")
	count := 0
	err = db.Fold(func(key, value []byte) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) || count != 1 {
		t.Fatalf("fold stop: %v after %d", err, count)
	}
	// mutating during iteration is allowed
	err = db.Ascend(func(key []byte) bool {
		return db.Delete(key) == nil
	})
	if err != nil || db.Len() != 0 {
		t.Fatalf("delete while ascending: %v, len %d", err, db.Len())
	}
}

func TestOpen_RejectsInvalidBaseName(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	for _, key := range []string{"a", "b"} {
		if err := db.Set([]byte(key), []byte("v"+key)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	before, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, name := range []string{"log.merge", "a.b", "nested/log", `win\log`} {
		if _, err := Open(dir, WithLogger(quietLogger()), WithBaseName(name)); !errors.Is(err, ErrInvalidBaseName) {
			t.Fatalf("open %q err = %v, want ErrInvalidBaseName", name, err)
		}
	}
	after, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("rejected opens changed dir: %d entries, want %d", len(after), len(before))
	}
	db = openDB(t, dir)
	defer db.Close()
	if db.Len() != 2 || string(mustGet(t, db, "b")) != "vb" {
		t.Fatalf("store damaged by rejected opens: len %d", db.Len())
	}
}

func TestDB_AscendKeysAreCopies(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	for _, key := range []string{"alpha", "beta"} {
		if err := db.Set([]byte(key), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	err := db.Ascend(func(key []byte) bool {
		for i := range key {
			key[i] = 'x'
		}
		return true
	})
	if err != nil {
		t.Fatalf("ascend: %v", err)
	}
	err = db.Fold(func(key, value []byte) error {
		key[0] = 'z'
		return nil
	})
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || string(keys[0]) != "alpha" || string(keys[1]) != "beta" {
		t.Fatalf("keys after mutating callbacks = %q", keys)
	}
	if ok, _ := db.Has([]byte("alpha")); !ok {
		t.Fatalf("alpha no longer found")
	}
}
