// Package fpcache persists content fingerprints across runs.
//
// Entries are keyed by (path, mtime in unix seconds, size). A file whose
// modification time and size are unchanged reuses its cached fingerprint
// instead of being rehashed. Cache failures never fail a sync run: a missing
// or corrupt cache loads empty, and save errors are returned for logging.
package fpcache

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
)

// formatVersion is bumped when the on-disk layout changes.
const formatVersion = 1

// Key identifies a file state.
type Key struct {
	Path  string
	MTime int64
	Size  int64
}

// String returns the persisted text form "path|mtime|size".
func (k Key) String() string {
	return k.Path + "|" + strconv.FormatInt(k.MTime, 10) + "|" + strconv.FormatInt(k.Size, 10)
}

// ParseKey parses the text form produced by Key.String.
// The path itself may contain '|'; the last two fields are numeric.
func ParseKey(s string) (Key, error) {
	sizeIdx := strings.LastIndexByte(s, '|')
	if sizeIdx < 0 {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	mtimeIdx := strings.LastIndexByte(s[:sizeIdx], '|')
	if mtimeIdx < 0 {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}

	mtime, err := strconv.ParseInt(s[mtimeIdx+1:sizeIdx], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed mtime in cache key %q: %w", s, err)
	}
	size, err := strconv.ParseInt(s[sizeIdx+1:], 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed size in cache key %q: %w", s, err)
	}

	return Key{Path: s[:mtimeIdx], MTime: mtime, Size: size}, nil
}

// KeyFor stats path and returns its cache key.
// If the stat fails the key degrades to {path, 0, 0}.
func KeyFor(fs *localfs.FS, path string) Key {
	info, err := fs.Stat(path)
	if err != nil {
		return Key{Path: path}
	}
	return Key{Path: path, MTime: info.ModTime().Unix(), Size: info.Size()}
}

type fileFormat struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// Cache maps file states to fingerprints. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]string
	logger  *slog.Logger
}

// New returns an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		entries: make(map[Key]string),
		logger:  logger,
	}
}

// Load reads the cache stored at path. A missing, unreadable or corrupt
// file produces an empty cache.
func Load(fs *localfs.FS, path string, logger *slog.Logger) *Cache {
	c := New(logger)

	exists, err := fs.Exists(path)
	if err != nil {
		c.logger.Warn("fingerprint cache unreadable, starting empty", "path", path, "error", err)
		return c
	}
	if !exists {
		c.logger.Debug("no fingerprint cache found", "path", path)
		return c
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		c.logger.Warn("fingerprint cache unreadable, starting empty", "path", path, "error", err)
		return c
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		c.logger.Warn("fingerprint cache corrupt, starting empty", "path", path, "error", err)
		return c
	}
	if ff.Version != formatVersion {
		c.logger.Warn("fingerprint cache has unsupported version, starting empty",
			"path", path, "version", ff.Version)
		return c
	}

	for raw, fp := range ff.Entries {
		key, err := ParseKey(raw)
		if err != nil {
			c.logger.Debug("skipping cache entry", "error", err)
			continue
		}
		c.entries[key] = fp
	}

	c.logger.Debug("fingerprint cache loaded", "path", path, "entries", len(c.entries))
	return c
}

// Get returns the fingerprint stored for key.
func (c *Cache) Get(key Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.entries[key]
	return fp, ok
}

// Set stores the fingerprint for key.
func (c *Cache) Set(key Key, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fingerprint
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictStale removes every entry whose path is not in current and returns
// how many were removed.
func (c *Cache) EvictStale(current map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if _, ok := current[key.Path]; !ok {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("evicted stale fingerprint cache entries", "count", removed)
	}
	return removed
}

// Save writes the cache to path, replacing any previous file atomically.
func (c *Cache) Save(fs *localfs.FS, path string) error {
	c.mu.RLock()
	ff := fileFormat{
		Version: formatVersion,
		Entries: make(map[string]string, len(c.entries)),
	}
	for key, fp := range c.entries {
		ff.Entries[key.String()] = fp
	}
	c.mu.RUnlock()

	data, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("encode fingerprint cache: %w", err)
	}
	if err := fs.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save fingerprint cache: %w", err)
	}

	c.logger.Debug("fingerprint cache saved", "path", path, "entries", len(ff.Entries))
	return nil
}
