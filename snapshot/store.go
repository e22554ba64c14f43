package snapshot

import (
	"context"
	"fmt"
	"io"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// Storage moves snapshots to and from any afs URL (file, mem, gs, s3, ...).
type Storage struct {
	fs afs.Service
}

// NewStorage returns a Storage backed by afs.New.
func NewStorage() *Storage {
	return &Storage{fs: afs.New()}
}

// Upload writes a snapshot of src to URL. The stream goes to URL+".tmp"
// first and is moved into place once complete.
func (s *Storage) Upload(ctx context.Context, URL string, src Source, source string) (Trailer, error) {
	reader, writer := io.Pipe()
	done := make(chan struct{})
	var trailer Trailer
	var writeErr error
	go func() {
		defer close(done)
		trailer, writeErr = Write(writer, src, source)
		_ = writer.CloseWithError(writeErr)
	}()
	tmp := URL + ".tmp"
	err := s.fs.Upload(ctx, tmp, file.DefaultFileOsMode, reader)
	_ = reader.CloseWithError(err)
	<-done
	if writeErr != nil {
		_ = s.fs.Delete(ctx, tmp)
		return trailer, writeErr
	}
	if err != nil {
		_ = s.fs.Delete(ctx, tmp)
		return trailer, fmt.Errorf("snapshot: upload %s: %w", URL, err)
	}
	if err := s.fs.Move(ctx, tmp, URL); err != nil {
		_ = s.fs.Delete(ctx, tmp)
		return trailer, fmt.Errorf("snapshot: move %s: %w", URL, err)
	}
	return trailer, nil
}

// Download restores the snapshot at URL into sink.
func (s *Storage) Download(ctx context.Context, URL string, sink Sink) (*Header, Trailer, error) {
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, Trailer{}, fmt.Errorf("snapshot: check %s: %w", URL, err)
	}
	if !exists {
		return nil, Trailer{}, fmt.Errorf("snapshot: %s does not exist", URL)
	}
	reader, err := s.fs.OpenURL(ctx, URL)
	if err != nil {
		return nil, Trailer{}, fmt.Errorf("snapshot: open %s: %w", URL, err)
	}
	defer reader.Close()
	return Read(reader, sink)
}
