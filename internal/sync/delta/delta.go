// Package delta decides which local files must be uploaded.
//
// A local file is uploaded when it has no remote counterpart, when its size
// differs from the remote record, or when sizes match and its fingerprint
// differs from a comparable remote fingerprint. Any error while examining a
// file marks that file for upload.
package delta

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/batch"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/fpcache"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/hasher"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

// progressEvery is how many processed files separate progress logs.
const progressEvery = 10

// Result is the outcome of a delta calculation.
type Result struct {
	// ToUpload lists the files to upload, in input order
	ToUpload []objtypes.DeltaEntry

	// HashedBytes is the number of bytes hashed on cache misses
	HashedBytes int64
}

// Calculator compares local files against a remote manifest.
type Calculator struct {
	hasher  hasher.Hasher
	cache   *fpcache.Cache
	fs      *localfs.FS
	workers int
	logger  *slog.Logger
}

// New creates a Calculator. A nil cache disables fingerprint reuse.
func New(h hasher.Hasher, cache *fpcache.Cache, fs *localfs.FS, workers int, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cache == nil {
		cache = fpcache.New(logger)
	}
	if workers <= 0 {
		workers = objtypes.DefaultWorkers
	}
	return &Calculator{
		hasher:  h,
		cache:   cache,
		fs:      fs,
		workers: workers,
		logger:  logger,
	}
}

// NeedsUpload compares a local fingerprint with a remote one for files of
// equal size.
//
// An absent remote identifier ("" or "-") always needs upload. A composite
// identifier (one containing '-', as produced by multipart uploads) cannot
// be compared with a content hash and is treated as matching.
func NeedsUpload(local, remote string) bool {
	if remote == "" || remote == "-" {
		return true
	}
	if strings.Contains(remote, "-") {
		return false
	}
	return !strings.EqualFold(local, remote)
}

// Fingerprint returns the fingerprint of the file at localPath, from the
// cache when its mtime and size are unchanged. hashed is size when the
// file had to be read.
func (c *Calculator) Fingerprint(localPath string, size int64) (fp string, hashed int64, err error) {
	key := fpcache.KeyFor(c.fs, localPath)
	if cached, ok := c.cache.Get(key); ok {
		return cached, 0, nil
	}

	fp, err = c.hasher.Hash(localPath)
	if err != nil {
		return "", 0, err
	}
	c.cache.Set(key, fp)
	return fp, size, nil
}

// Calculate diffs local against remote and returns the files to upload.
// Remote keys are prefix + record path.
func (c *Calculator) Calculate(
	ctx context.Context,
	local []manifest.LocalRecord,
	remote *manifest.Manifest,
	prefix string,
) (*Result, error) {
	total := len(local)
	c.logger.Info("calculating delta", "local", total, "remote", remote.Len())

	var (
		upload      = make([]bool, total)
		hashedBytes atomic.Int64
		processed   atomic.Int64
	)

	_, err := batch.Run(ctx, total, c.workers, func(_ context.Context, i int) {
		needs, hashed, err := c.examine(local[i], remote)
		if err != nil {
			c.logger.Warn("failed to examine file, scheduling upload",
				"path", local[i].Path, "error", err)
			needs = true
		}
		upload[i] = needs
		hashedBytes.Add(hashed)

		done := processed.Add(1)
		if done%progressEvery == 0 || done == int64(total) {
			c.logger.Info("delta progress",
				"processed", done,
				"total", total,
				"percent", fmt.Sprintf("%.1f", float64(done)*100/float64(total)))
		}
	})
	if err != nil {
		return nil, err
	}

	result := &Result{HashedBytes: hashedBytes.Load()}
	for i, rec := range local {
		if upload[i] {
			result.ToUpload = append(result.ToUpload, objtypes.DeltaEntry{
				Key:       prefix + rec.Path,
				LocalPath: rec.LocalPath,
				Size:      rec.Size,
			})
		}
	}

	c.logger.Info("delta calculated", "to_upload", len(result.ToUpload), "hashed_bytes", result.HashedBytes)
	return result, nil
}

func (c *Calculator) examine(rec manifest.LocalRecord, remote *manifest.Manifest) (bool, int64, error) {
	remoteRec, ok := remote.Lookup(rec.Path)
	if !ok {
		return true, 0, nil
	}
	if remoteRec.Size != rec.Size {
		return true, 0, nil
	}

	fp, hashed, err := c.Fingerprint(rec.LocalPath, rec.Size)
	if err != nil {
		return true, hashed, err
	}
	return NeedsUpload(fp, remoteRec.Fingerprint), hashed, nil
}
