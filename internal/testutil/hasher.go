package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/hasher"
)

// SpyHasher wraps a Hasher and counts calls per path.
type SpyHasher struct {
	mu    sync.Mutex
	inner hasher.Hasher
	calls map[string]int

	// Fail maps paths to an error returned instead of hashing.
	Fail map[string]error
}

// NewSpyHasher wraps inner.
func NewSpyHasher(inner hasher.Hasher) *SpyHasher {
	return &SpyHasher{
		inner: inner,
		calls: make(map[string]int),
		Fail:  make(map[string]error),
	}
}

// Hash implements hasher.Hasher.
func (s *SpyHasher) Hash(path string) (string, error) {
	s.mu.Lock()
	s.calls[path]++
	err := s.Fail[path]
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	if s.inner == nil {
		return "", errors.New("spy hasher has no inner hasher")
	}
	return s.inner.Hash(path)
}

// Calls returns the total number of Hash calls.
func (s *SpyHasher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// CallsFor returns the number of Hash calls for path.
func (s *SpyHasher) CallsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

var _ hasher.Hasher = (*SpyHasher)(nil)

// StaticHasher returns fixed fingerprints by path.
type StaticHasher map[string]string

// Hash implements hasher.Hasher.
func (h StaticHasher) Hash(path string) (string, error) {
	fp, ok := h[path]
	if !ok {
		return "", fmt.Errorf("no fingerprint for %s", path)
	}
	return fp, nil
}
