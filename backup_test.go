package bitcask

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/viant/bitcask/snapshot"
)

func TestDB_SnapshotRestore(t *testing.T) {
	db := openDB(t, t.TempDir(), WithSegmentSize(256))
	for i := 0; i < 100; i++ {
		if err := db.Set([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	for i := 0; i < 100; i += 4 {
		if err := db.Delete([]byte(fmt.Sprintf("k%03d", i))); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	want, _ := db.Digest()
	var buf bytes.Buffer
	trailer, err := db.Snapshot(&buf)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if trailer.Count != 75 {
		t.Fatalf("snapshot count = %d, want 75", trailer.Count)
	}
	if trailer.Digest != want {
		t.Fatalf("snapshot digest %x, store digest %x", trailer.Digest, want)
	}
	_ = db.Close()

	restored, err := Restore(t.TempDir(), &buf, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer restored.Close()
	got, err := restored.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if got != want || restored.Len() != 75 {
		t.Fatalf("restored digest %x len %d, want %x len 75", got, restored.Len(), want)
	}
}

func TestRestore_Damaged(t *testing.T) {
	dir := t.TempDir()
	if _, err := Restore(dir, bytes.NewReader([]byte("garbage")), WithLogger(quietLogger())); !errors.Is(err, snapshot.ErrFormat) {
		t.Fatalf("restore err = %v, want ErrFormat", err)
	}
	// the directory is unlocked again
	db := openDB(t, dir)
	_ = db.Close()
}
