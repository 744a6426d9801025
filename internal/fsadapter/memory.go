// Package fsadapter provides the Filesystem Adapter (C1): the uniform
// storage interface every persisted component (Configuration Store,
// Transaction Store, Meter Value Store, Boot Service) goes through, plus
// two implementations — an in-memory fake for tests and hosts with no
// durable storage, and an OS-file-backed implementation for everything
// else. Grounded in the teacher's sharded-locking Memory backend
// (backend/mem.go): same idea of locking only the region a call touches,
// adapted here from byte-offset shards to a per-name lock since this
// store is keyed by file name, not a single flat address space.
package fsadapter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microocpp-go/engine/internal/interfaces"
)

// Memory is an in-memory FileSystem, safe for concurrent use. Each named
// file gets its own lock so unrelated files never contend, the same
// locking granularity principle the teacher's Memory backend applies at
// shard level.
type Memory struct {
	mu    sync.Mutex
	files map[string]*memFileData
}

type memFileData struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory creates an empty in-memory FileSystem.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]*memFileData)}
}

func (m *Memory) lookup(name string, create bool) (*memFileData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok && create {
		f = &memFileData{}
		m.files[name] = f
		ok = true
	}
	return f, ok
}

// Open returns a handle onto the named in-memory file.
func (m *Memory) Open(name string, flag int) (interfaces.File, error) {
	f, ok := m.lookup(name, flag&os.O_CREATE != 0)
	if !ok {
		return nil, fmt.Errorf("fsadapter: %s: %w", name, os.ErrNotExist)
	}
	if flag&os.O_TRUNC != 0 {
		f.mu.Lock()
		f.data = nil
		f.mu.Unlock()
	}
	return &memFile{name: name, data: f}, nil
}

// Stat reports the size of an in-memory file.
func (m *Memory) Stat(name string) (os.FileInfo, error) {
	f, ok := m.lookup(name, false)
	if !ok {
		return nil, fmt.Errorf("fsadapter: %s: %w", name, os.ErrNotExist)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return memFileInfo{name: name, size: int64(len(f.data))}, nil
}

// Remove deletes an in-memory file. Removing a file that doesn't exist is
// not an error, matching the idempotent-delete behavior the Transaction
// Store's purge logic expects.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

// Walk invokes fn once per file name with the given prefix, in sorted order.
func (m *Memory) Walk(prefix string, fn func(name string) error) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

type memFile struct {
	name   string
	data   *memFileData
	offset int64
}

func (f *memFile) Read(p []byte) (int, error) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	if f.offset >= int64(len(f.data.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data.data[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	end := f.offset + int64(len(p))
	if end > int64(len(f.data.data)) {
		grown := make([]byte, end)
		copy(grown, f.data.data)
		f.data.data = grown
	}
	n := copy(f.data.data[f.offset:end], p)
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	switch whence {
	case os.SEEK_SET:
		f.offset = offset
	case os.SEEK_CUR:
		f.offset += offset
	case os.SEEK_END:
		f.offset = int64(len(f.data.data)) + offset
	default:
		return 0, fmt.Errorf("fsadapter: invalid whence %d", whence)
	}
	return f.offset, nil
}

func (f *memFile) Close() error { return nil }

// Sync is a no-op: there is no write-back cache to flush, matching
// interfaces.File's documented allowance.
func (f *memFile) Sync() error { return nil }

// Bytes returns a snapshot copy of the file's contents (test helper).
func (f *memFile) Bytes() []byte {
	f.data.mu.Lock()
	defer f.data.mu.Unlock()
	return bytes.Clone(f.data.data)
}

type memFileInfo struct {
	name string
	size int64
}

func (i memFileInfo) Name() string        { return i.name }
func (i memFileInfo) Size() int64         { return i.size }
func (i memFileInfo) Mode() os.FileMode   { return 0o644 }
func (i memFileInfo) ModTime() time.Time  { return time.Time{} }
func (i memFileInfo) IsDir() bool         { return false }
func (i memFileInfo) Sys() interface{}    { return nil }

var _ interfaces.FileSystem = (*Memory)(nil)
