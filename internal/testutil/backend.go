// Package testutil provides test doubles shared by the sync packages.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// Call is one recorded backend invocation.
type Call struct {
	Op  string
	Key string
}

// MemoryBackend is an in-memory storage.Backend that records every call.
// Put reads the local file through the configured filesystem.
type MemoryBackend struct {
	mu      sync.Mutex
	fs      *localfs.FS
	objects map[string][]byte
	calls   []Call

	// Errors maps "op:key" (or "op:*") to an injected failure.
	Errors map[string]error
}

// NewMemoryBackend creates an empty backend reading uploads from fs.
func NewMemoryBackend(fs *localfs.FS) *MemoryBackend {
	return &MemoryBackend{
		fs:      fs,
		objects: make(map[string][]byte),
		Errors:  make(map[string]error),
	}
}

// FailOn injects err for op on key; key "*" matches every key.
func (m *MemoryBackend) FailOn(op, key string, err error) *MemoryBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[op+":"+key] = err
	return m
}

// Seed stores an object directly, without recording a call.
func (m *MemoryBackend) Seed(key string, data []byte) *MemoryBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return m
}

// Object returns a stored object body.
func (m *MemoryBackend) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Keys returns all stored keys in lexical order.
func (m *MemoryBackend) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the recorded calls in order.
func (m *MemoryBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the keys passed to op, in call order.
func (m *MemoryBackend) CallsFor(op string) []string {
	var keys []string
	for _, c := range m.Calls() {
		if c.Op == op {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// ResetCalls clears the call log.
func (m *MemoryBackend) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// record logs the call and returns any injected error. Callers hold mu.
func (m *MemoryBackend) record(op, key string) error {
	m.calls = append(m.calls, Call{Op: op, Key: key})
	if err, ok := m.Errors[op+":"+key]; ok {
		return err
	}
	if err, ok := m.Errors[op+":*"]; ok {
		return err
	}
	return nil
}

// Exists implements storage.Backend.
func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("exists", key); err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

// Get implements storage.Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get", key); err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, objerrors.NewNotFoundError("get", key)
	}
	return append([]byte(nil), data...), nil
}

// Put implements storage.Backend.
func (m *MemoryBackend) Put(_ context.Context, localPath, key string) error {
	data, readErr := m.fs.ReadFile(localPath)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("put", key); err != nil {
		return err
	}
	if readErr != nil {
		return objerrors.NewIOError("put", localPath, readErr).WithKey(key)
	}
	m.objects[key] = data
	return nil
}

// Delete implements storage.Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

// List implements storage.Backend. The page token is the last key returned.
func (m *MemoryBackend) List(_ context.Context, prefix string, pageSize int, pageToken string) (*storage.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list", prefix); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > pageToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &storage.ListPage{}
	for _, k := range keys {
		if pageSize > 0 && len(page.Objects) == pageSize {
			page.NextPageToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, storage.ObjectInfo{Key: k, Size: int64(len(m.objects[k]))})
	}
	return page, nil
}

var _ storage.Backend = (*MemoryBackend)(nil)
