// Package uploader pushes delta entries to a storage backend in bounded,
// sequential batches, with the sync control files uploaded last.
package uploader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/batch"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// FailedEntry is an entry whose upload failed.
type FailedEntry struct {
	// Entry is the delta entry that failed
	Entry objtypes.DeltaEntry

	// Err is the underlying error
	Err error
}

// Result contains the result of an upload pass.
type Result struct {
	// uploaded is the number of data files uploaded (internal counter)
	uploaded int64

	// bytes is the number of data bytes uploaded (internal counter)
	bytes int64

	mu     sync.Mutex
	failed []FailedEntry

	// ControlUploaded reports whether every control file was uploaded
	ControlUploaded bool

	// Batches is the number of data batches started
	Batches int

	// Duration is how long the pass took
	Duration time.Duration
}

// Uploaded returns the number of data files uploaded.
func (r *Result) Uploaded() int {
	return int(atomic.LoadInt64(&r.uploaded))
}

// Bytes returns the number of data bytes uploaded.
func (r *Result) Bytes() int64 {
	return atomic.LoadInt64(&r.bytes)
}

// Failed returns the entries whose upload failed, data entries first.
func (r *Result) Failed() []FailedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FailedEntry, len(r.failed))
	copy(out, r.failed)
	return out
}

func (r *Result) addFailure(e objtypes.DeltaEntry, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, FailedEntry{Entry: e, Err: err})
}

// Uploader uploads files through a storage backend.
type Uploader struct {
	backend storage.Backend
	fs      *localfs.FS
	workers int
	logger  *slog.Logger
}

// New creates an Uploader uploading at most workers files at once.
func New(backend storage.Backend, fs *localfs.FS, workers int, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = objtypes.DefaultWorkers
	}
	return &Uploader{
		backend: backend,
		fs:      fs,
		workers: workers,
		logger:  logger,
	}
}

// Upload uploads entries in sequential batches, then uploads control in
// order. A failed data upload is recorded and contributes nothing to the
// totals. Control files are withheld when any data upload failed, and the
// remaining control files are skipped after the first control failure, so
// a published version marker always describes a fully uploaded tree.
func (u *Uploader) Upload(ctx context.Context, entries, control []objtypes.DeltaEntry) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if len(entries) > 0 {
		u.logger.Info("uploading files", "count", len(entries), "workers", u.workers)
	}

	batches, err := batch.Run(ctx, len(entries), u.workers, func(ctx context.Context, i int) {
		u.uploadOne(ctx, entries[i], result)
	})
	result.Batches = batches
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if failed := len(result.Failed()); failed > 0 {
		u.logger.Warn("withholding control files after failed uploads",
			"failed", failed, "control", len(control))
	} else {
		result.ControlUploaded = u.uploadControl(ctx, control, result)
	}

	result.Duration = time.Since(start)
	u.logger.Info("upload complete",
		"uploaded", result.Uploaded(),
		"bytes", humanize.IBytes(uint64(result.Bytes())),
		"failed", len(result.Failed()),
		"duration", result.Duration)
	return result, nil
}

func (u *Uploader) uploadOne(ctx context.Context, e objtypes.DeltaEntry, result *Result) {
	size, err := u.put(ctx, e)
	if err != nil {
		u.logger.Warn("upload failed", "path", e.LocalPath, "key", e.Key, "error", err)
		result.addFailure(e, err)
		return
	}
	atomic.AddInt64(&result.uploaded, 1)
	atomic.AddInt64(&result.bytes, size)
	u.logger.Debug("uploaded", "key", e.Key, "size", size)
}

func (u *Uploader) uploadControl(ctx context.Context, control []objtypes.DeltaEntry, result *Result) bool {
	for _, e := range control {
		if err := ctx.Err(); err != nil {
			result.addFailure(e, err)
			return false
		}
		if _, err := u.put(ctx, e); err != nil {
			u.logger.Warn("control file upload failed", "key", e.Key, "error", err)
			result.addFailure(e, err)
			return false
		}
		u.logger.Debug("uploaded control file", "key", e.Key)
	}
	return true
}

func (u *Uploader) put(ctx context.Context, e objtypes.DeltaEntry) (int64, error) {
	info, err := u.fs.Stat(e.LocalPath)
	if err != nil {
		return 0, objerrors.NewIOError("upload", e.LocalPath, err).WithKey(e.Key)
	}
	if err := u.backend.Put(ctx, e.LocalPath, e.Key); err != nil {
		return 0, objerrors.NewBackendError("upload", e.Key, err).WithPath(e.LocalPath)
	}
	return info.Size(), nil
}
