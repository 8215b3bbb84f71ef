// Package sync runs the version check, delta, upload and prune phases of a
// sync run.
//
// A run first compares the local and remote version markers. When both are
// known and equal the run ends as up to date without downloading the remote
// listing. Otherwise the remote listing is fetched, the delta is computed,
// changed files are uploaded and the listing and version marker are
// published last.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/fpcache"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/hasher"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/sync/delta"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/sync/pruner"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/sync/uploader"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// Manager coordinates the phases of a sync run:
// 1. Version check: compare local and remote version markers
// 2. Delta: diff the local listing against the remote listing
// 3. Upload: push changed files, then the control files
// 4. Prune: optionally delete unlisted remote objects
type Manager struct {
	backend storage.Backend
	fs      *localfs.FS
	hasher  hasher.Hasher
	cfg     objtypes.Config
	logger  *slog.Logger
}

// NewManager creates a manager. cfg must already be normalized; a nil
// hasher selects MD5 with cfg.HashChunkMiB reads.
func NewManager(backend storage.Backend, fs *localfs.FS, h hasher.Hasher, cfg objtypes.Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if h == nil {
		h = hasher.New(fs, cfg.HashChunkMiB*1024*1024)
	}
	return &Manager{
		backend: backend,
		fs:      fs,
		hasher:  h,
		cfg:     cfg,
		logger:  logger.With("component", "sync"),
	}
}

// CheckVersion compares the local and remote version markers. A remote
// read failure other than not-found is returned.
func (m *Manager) CheckVersion(ctx context.Context) (*objtypes.VersionStatus, error) {
	remote, err := manifest.RemoteVersion(ctx, m.backend, m.cfg.Prefix)
	if err != nil {
		return nil, err
	}
	local := manifest.LocalVersion(m.fs, m.cfg.LocalRoot)

	check := &objtypes.VersionStatus{Local: local, Remote: remote, State: objtypes.StateNeedsSync}
	if local.Matches(remote) {
		check.State = objtypes.StateUpToDate
	}

	m.logger.Info("version check", "local", local, "remote", remote, "state", check.State)
	return check, nil
}

// BuildManifest scans the local root, fingerprints every file and writes
// the local listing and version files. The new version is one more than
// the highest of the local and remote markers. Files that cannot be read
// are listed with manifest.NoFingerprint and logged.
func (m *Manager) BuildManifest(ctx context.Context) (*manifest.Manifest, error) {
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	remote, err := manifest.RemoteVersion(ctx, m.backend, m.cfg.Prefix)
	if err != nil {
		return nil, err
	}

	cache := m.loadCache()
	b, err := m.buildManifest(ctx, cache, remote)
	if err != nil {
		return nil, err
	}
	m.saveCache(cache)
	return b.manifest, nil
}

// built is the outcome of a local listing build.
type built struct {
	manifest *manifest.Manifest
	hashed   int64
	errors   []objtypes.SyncError
}

func (m *Manager) buildManifest(
	ctx context.Context,
	cache *fpcache.Cache,
	remote objtypes.Version,
) (*built, error) {
	sc := scanner.New(m.fs, m.cfg.LocalRoot, m.cfg.ExcludePatterns, m.logger)
	files, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.LocalPath] = struct{}{}
	}
	cache.EvictStale(current)

	calc := delta.New(m.hasher, cache, m.fs, m.cfg.Workers, m.logger)
	records := make([]manifest.Record, 0, len(files))
	out := &built{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fp, n, err := calc.Fingerprint(f.LocalPath, f.Size)
		if err != nil {
			m.logger.Warn("failed to fingerprint file", "path", f.LocalPath, "error", err)
			out.errors = append(out.errors, syncError(f.LocalPath, err))
			fp = manifest.NoFingerprint
		}
		out.hashed += n
		records = append(records, manifest.Record{Path: f.Path, Fingerprint: fp, Size: f.Size})
	}

	version := objtypes.NextVersion(manifest.LocalVersion(m.fs, m.cfg.LocalRoot), remote)
	out.manifest = manifest.New(objtypes.Unknown(), records)
	if err := manifest.WriteLocal(m.fs, m.cfg.LocalRoot, out.manifest, version); err != nil {
		return nil, err
	}

	m.logger.Info("local listing written",
		"files", out.manifest.Len(),
		"unreadable", len(out.errors),
		"version", version)
	return out, nil
}

// Run executes a sync run. Errors fetching the remote version marker or
// listing terminate the run; per-file failures are reported in the result.
func (m *Manager) Run(ctx context.Context) (*objtypes.SyncResult, error) {
	start := time.Now()

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	m.logger.Info("sync started",
		"root", m.cfg.LocalRoot,
		"prefix", m.cfg.Prefix,
		"workers", m.cfg.Workers,
		"delete_extra", m.cfg.DeleteExtra)

	remoteVersion, err := manifest.RemoteVersion(ctx, m.backend, m.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to check remote version: %w", err)
	}

	result := &objtypes.SyncResult{}
	var cache *fpcache.Cache

	local, err := manifest.ReadLocal(m.fs, m.cfg.LocalRoot, m.logger)
	switch {
	case objerrors.IsNotFound(err):
		m.logger.Info("no local listing, building one")
		cache = m.loadCache()
		b, err := m.buildManifest(ctx, cache, remoteVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to build local listing: %w", err)
		}
		local = b.manifest
		result.HashedBytes += b.hashed
		result.Errors = append(result.Errors, b.errors...)
	case err != nil:
		return nil, fmt.Errorf("failed to read local listing: %w", err)
	}

	result.ScannedLocal = local.Len()

	if local.Version.Matches(remoteVersion) {
		m.logger.Info("remote is up to date", "version", remoteVersion)
		if cache != nil {
			m.saveCache(cache)
		}
		result.ScannedRemote = local.Len()
		result.State = objtypes.StateUpToDate
		result.ElapsedTime = time.Since(start)
		return result, nil
	}

	m.logger.Info("versions differ", "local", local.Version, "remote", remoteVersion)
	result.State = objtypes.StateNeedsSync

	remote, err := manifest.FetchRemote(ctx, m.backend, m.cfg.Prefix, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote listing: %w", err)
	}
	result.ScannedRemote = remote.Len()

	if cache == nil {
		cache = m.loadCache()
	}
	localFiles := manifest.Localize(m.fs, m.cfg.LocalRoot, local)
	current := make(map[string]struct{}, len(localFiles))
	for _, f := range localFiles {
		current[f.LocalPath] = struct{}{}
	}
	cache.EvictStale(current)

	calc := delta.New(m.hasher, cache, m.fs, m.cfg.Workers, m.logger)
	diff, err := calc.Calculate(ctx, localFiles, remote, m.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate delta: %w", err)
	}
	result.HashedBytes += diff.HashedBytes
	m.saveCache(cache)

	up := uploader.New(m.backend, m.fs, m.cfg.Workers, m.logger)
	uploaded, err := up.Upload(ctx, diff.ToUpload, m.controlEntries())
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}
	result.Uploaded = uploaded.Uploaded()
	result.TotalSize = uploaded.Bytes()
	for _, f := range uploaded.Failed() {
		if !m.isControl(f.Entry.LocalPath) {
			result.Failed++
		}
		result.Errors = append(result.Errors, syncError(f.Entry.LocalPath, f.Err))
	}

	if m.cfg.DeleteExtra {
		m.prune(ctx, local, uploaded, result)
	}

	result.State = objtypes.StateDone
	result.ElapsedTime = time.Since(start)
	m.logger.Info("sync completed",
		"uploaded", result.Uploaded,
		"failed", result.Failed,
		"deleted", result.Deleted,
		"elapsed", result.ElapsedTime)
	return result, nil
}

func (m *Manager) prune(ctx context.Context, local *manifest.Manifest, uploaded *uploader.Result, result *objtypes.SyncResult) {
	if len(uploaded.Failed()) > 0 || !uploaded.ControlUploaded {
		m.logger.Warn("skipping delete of extra objects after failed uploads")
		return
	}

	pr := pruner.New(m.backend, m.cfg.Workers, m.logger)
	pr.AllowRoot = m.cfg.AllowRootPrune
	pruned, err := pr.Prune(ctx, local, m.cfg.Prefix)
	if pruned != nil {
		result.Deleted = pruned.Deleted
		for _, e := range pruned.Errors {
			result.Errors = append(result.Errors, syncError(e.Key, e.Err))
		}
	}
	if err != nil {
		m.logger.Error("delete of extra objects aborted", "error", err)
		result.Errors = append(result.Errors, syncError(m.cfg.Prefix, err))
	}
}

func (m *Manager) controlEntries() []objtypes.DeltaEntry {
	return []objtypes.DeltaEntry{
		{
			Key:       manifest.ListingKey(m.cfg.Prefix),
			LocalPath: manifest.ListingPath(m.fs, m.cfg.LocalRoot),
		},
		{
			Key:       manifest.VersionKey(m.cfg.Prefix),
			LocalPath: manifest.VersionPath(m.fs, m.cfg.LocalRoot),
		},
	}
}

func (m *Manager) isControl(localPath string) bool {
	return localPath == manifest.ListingPath(m.fs, m.cfg.LocalRoot) ||
		localPath == manifest.VersionPath(m.fs, m.cfg.LocalRoot)
}

func (m *Manager) loadCache() *fpcache.Cache {
	return fpcache.Load(m.fs, m.cfg.CachePath, m.logger)
}

func (m *Manager) saveCache(cache *fpcache.Cache) {
	if err := cache.Save(m.fs, m.cfg.CachePath); err != nil {
		m.logger.Warn("failed to save fingerprint cache", "path", m.cfg.CachePath, "error", err)
	}
}

func (m *Manager) lock() (func(), error) {
	if m.cfg.LockFile == "" {
		return func() {}, nil
	}
	l, err := fpcache.AcquireLock(m.fs, m.cfg.LockFile)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := l.Unlock(); err != nil {
			m.logger.Warn("failed to release lock", "path", l.Path(), "error", err)
		}
	}, nil
}

func syncError(path string, err error) objtypes.SyncError {
	return objtypes.SyncError{
		Path:    path,
		Code:    objerrors.CodeOf(err),
		Message: err.Error(),
	}
}
