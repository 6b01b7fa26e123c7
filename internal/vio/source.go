// Package vio provides the shared byte source that backs every entry
// stream of an open archive. A Source serializes positioned reads so
// that streams on different goroutines never observe each other's
// cursor motion.
package vio

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Source is a thread-shared handle to an archive's raw bytes. All
// reads go through ReadAt, which holds the lock for exactly one
// positioned read. Source implements io.ReaderAt, so section readers
// and decoders compose on top of it without further coordination.
type Source struct {
	mu   sync.Mutex
	r    io.ReaderAt
	size int64
	name string

	closer io.Closer
}

// NewFile opens path and wraps it in a Source.
func NewFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat container: %w", err)
	}
	return &Source{r: f, size: info.Size(), name: path, closer: f}, nil
}

// NewBytes wraps an in-memory buffer in a Source. The buffer must not
// be mutated while the Source is in use.
func NewBytes(name string, data []byte) *Source {
	return &Source{r: bytesReaderAt(data), size: int64(len(data)), name: name}
}

// Name returns the path or label the source was opened with.
func (s *Source) Name() string { return s.name }

// Size returns the total length of the underlying container.
func (s *Source) Size() int64 { return s.size }

// ReadAt reads len(p) bytes starting at absolute offset off. The seek
// and read happen as one atomic unit under the source lock.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.ReadAt(p, off)
}

// ReadFull reads exactly len(p) bytes at off, failing on short reads.
func (s *Source) ReadFull(p []byte, off int64) error {
	n, err := s.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %d bytes at offset %d: %w", len(p), off, err)
}

// Close releases the underlying file, if any. Closing a Source while
// entry streams still reference it makes their subsequent reads fail;
// the archive owning the source decides when that is safe.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
