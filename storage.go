package ldifion

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Storage is the stream boundary to the surrounding task layer. Unit
// references are opaque strings: the pipeline never interprets them beyond
// passing them back to the same Storage.
type Storage interface {
	// Open returns the readable stream of an existing unit.
	Open(ref string) (io.ReadCloser, error)
	// Create allocates a new unit and returns its writable stream together
	// with the reference under which it will be readable once closed.
	Create() (io.WriteCloser, string, error)
}

// MemoryStorage is an in-memory Storage for tests and embedding. Created
// units become readable once their write stream is closed.
type MemoryStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
	seq   int
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

// Put stores content under a fresh reference and returns it.
func (s *MemoryStorage) Put(content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := fmt.Sprintf("mem://%d", s.seq)
	s.blobs[ref] = bytes.Clone(content)
	return ref
}

// Get returns the content stored under ref.
func (s *MemoryStorage) Get(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[ref]
	return b, ok
}

// Open implements Storage.
func (s *MemoryStorage) Open(ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("ldifion: no stored unit %q", ref)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Create implements Storage.
func (s *MemoryStorage) Create() (io.WriteCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := fmt.Sprintf("mem://%d", s.seq)
	return &memoryWriter{store: s, ref: ref}, ref, nil
}

type memoryWriter struct {
	store *MemoryStorage
	ref   string
	buf   bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.blobs[w.ref] = bytes.Clone(w.buf.Bytes())
	return nil
}
