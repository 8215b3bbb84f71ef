package objsync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	syncmgr "github.com/input-output-hk/catalyst-forge-libs/objsync/internal/sync/sync"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// cacheFile is the fingerprint cache file name inside the state directory.
const cacheFile = "fingerprints.json"

// Client synchronizes one local root to one remote prefix.
type Client struct {
	backend storage.Backend
	fs      *localfs.FS
	cfg     objtypes.Config
	manager *syncmgr.Manager
	logger  *slog.Logger
}

// New creates a Client writing to backend.
//
// Example:
//
//	client, err := objsync.New(backend,
//	    objsync.WithLocalRoot("/srv/www"),
//	    objsync.WithPrefix("www"),
//	    objsync.WithWorkers(16),
//	)
func New(backend storage.Backend, opts ...objtypes.Option) (*Client, error) {
	if backend == nil {
		return nil, objerrors.NewError("client initialization",
			fmt.Errorf("%w: backend is required", objerrors.ErrInvalidInput))
	}

	cfg := objtypes.Config{
		Workers:      objtypes.DefaultWorkers,
		HashChunkMiB: objtypes.DefaultHashChunkMiB,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := normalize(&cfg); err != nil {
		return nil, err
	}

	fs := localfs.New(cfg.Filesystem)
	return &Client{
		backend: backend,
		fs:      fs,
		cfg:     cfg,
		manager: syncmgr.NewManager(backend, fs, nil, cfg),
		logger:  cfg.Logger,
	}, nil
}

func normalize(cfg *objtypes.Config) error {
	if cfg.LocalRoot == "" {
		return objerrors.NewError("client initialization",
			fmt.Errorf("%w: local root is required", objerrors.ErrInvalidInput))
	}
	if cfg.Filesystem == nil {
		abs, err := filepath.Abs(cfg.LocalRoot)
		if err != nil {
			return objerrors.NewIOError("client initialization", cfg.LocalRoot, err)
		}
		cfg.LocalRoot = abs
	}

	cfg.Prefix = NormalizePrefix(cfg.Prefix)
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(cfg.LocalRoot, objtypes.StateDir, cacheFile)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// NormalizePrefix returns prefix with a trailing "/" unless it is empty.
func NormalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// Config returns the normalized configuration.
func (c *Client) Config() objtypes.Config {
	return c.cfg
}

// Sync runs one synchronization. Failures reading the remote version marker
// or listing are returned as errors; per-file failures are reported in the
// result and do not fail the run.
func (c *Client) Sync(ctx context.Context) (*objtypes.SyncResult, error) {
	return c.manager.Run(ctx)
}

// CheckVersion compares the local and remote version markers without
// reading either listing.
func (c *Client) CheckVersion(ctx context.Context) (*objtypes.VersionStatus, error) {
	return c.manager.CheckVersion(ctx)
}

// BuildManifest rescans the local root and rewrites the local listing and
// version marker, bumping the version past both the local and remote ones.
func (c *Client) BuildManifest(ctx context.Context) (*objtypes.ManifestSummary, error) {
	m, err := c.manager.BuildManifest(ctx)
	if err != nil {
		return nil, err
	}
	version, _ := m.Version.Value()
	return &objtypes.ManifestSummary{
		Files:     m.Len(),
		TotalSize: m.TotalSize(),
		Version:   version,
	}, nil
}

// ListFolders returns the distinct first-level folder prefixes directly
// under the configured prefix, sorted, each ending in "/".
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	objects, err := storage.ListAll(ctx, c.backend, c.cfg.Prefix, storage.DefaultPageSize)
	if err != nil {
		return nil, objerrors.NewBackendError("list-folders", c.cfg.Prefix, err)
	}

	seen := make(map[string]struct{})
	for _, o := range objects {
		rel := strings.TrimPrefix(o.Key, c.cfg.Prefix)
		i := strings.IndexByte(rel, '/')
		if i <= 0 {
			continue
		}
		seen[c.cfg.Prefix+rel[:i+1]] = struct{}{}
	}

	folders := make([]string, 0, len(seen))
	for f := range seen {
		folders = append(folders, f)
	}
	sort.Strings(folders)

	c.logger.Debug("listed folders", "prefix", c.cfg.Prefix, "count", len(folders))
	return folders, nil
}
