// Package pruner removes remote objects that a manifest no longer lists.
//
// Before deleting anything the pruner checks that every manifest record is
// present remotely with the recorded size. Any disagreement aborts pruning.
package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/batch"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// maxExamples bounds how many mismatches are logged individually.
const maxExamples = 5

// Mismatch is a manifest record that disagrees with the remote listing.
type Mismatch struct {
	Key        string
	Missing    bool
	ListedSize int64
	RemoteSize int64
}

// DeleteError is a failed delete.
type DeleteError struct {
	Key string
	Err error
}

// Result is the outcome of a prune pass.
type Result struct {
	// Deleted is the number of objects removed
	Deleted int

	// Extra is the number of unlisted objects found
	Extra int

	// Mismatches are records missing remotely or with a different size
	Mismatches []Mismatch

	// Errors are failed deletes
	Errors []DeleteError
}

// Pruner deletes unlisted remote objects.
type Pruner struct {
	backend storage.Backend
	workers int
	logger  *slog.Logger

	// AllowRoot permits pruning with an empty prefix, which covers the
	// whole bucket
	AllowRoot bool
}

// New creates a Pruner deleting at most workers objects at once.
func New(backend storage.Backend, workers int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = objtypes.DefaultWorkers
	}
	return &Pruner{backend: backend, workers: workers, logger: logger}
}

// Prune verifies the remote tree under prefix against m and deletes every
// object m does not list, except the control files. A verification failure
// returns an error matching errors.ErrRemoteMismatch and deletes nothing.
// An empty prefix is refused with errors.ErrInvalidInput unless AllowRoot
// is set.
func (p *Pruner) Prune(ctx context.Context, m *manifest.Manifest, prefix string) (*Result, error) {
	if prefix == "" && !p.AllowRoot {
		p.logger.Warn("refusing to delete extra objects at the bucket root")
		return nil, objerrors.NewError("prune", fmt.Errorf("%w: empty prefix would prune the whole bucket",
			objerrors.ErrInvalidInput))
	}

	p.logger.Info("comparing manifest with remote objects", "prefix", prefix)

	objects, err := storage.ListAll(ctx, p.backend, prefix, storage.DefaultPageSize)
	if err != nil {
		return nil, objerrors.NewBackendError("prune-list", prefix, err)
	}
	p.logger.Info("listed remote objects", "count", len(objects))

	remote := make(map[string]storage.ObjectInfo, len(objects))
	for _, o := range objects {
		remote[o.Key] = o
	}

	result := &Result{Mismatches: verify(m, remote, prefix)}
	if len(result.Mismatches) > 0 {
		p.reportMismatches(result.Mismatches)
		return result, objerrors.NewError("prune", fmt.Errorf("%w: %d records disagree with remote",
			objerrors.ErrRemoteMismatch, len(result.Mismatches))).WithKey(prefix)
	}

	extra := extraKeys(m, objects, prefix)
	result.Extra = len(extra)
	if len(extra) == 0 {
		p.logger.Info("no extra objects found")
		return result, nil
	}

	p.logger.Info("deleting extra objects", "count", len(extra))
	var mu sync.Mutex
	_, err = batch.Run(ctx, len(extra), p.workers, func(ctx context.Context, i int) {
		key := extra[i]
		derr := p.backend.Delete(ctx, key)

		mu.Lock()
		defer mu.Unlock()
		if derr != nil {
			p.logger.Error("failed to delete object", "key", key, "error", derr)
			result.Errors = append(result.Errors, DeleteError{Key: key, Err: derr})
			return
		}
		result.Deleted++
		p.logger.Debug("deleted object", "key", key)
	})
	if err != nil {
		return result, err
	}

	p.logger.Info("deleted extra objects", "deleted", result.Deleted, "failed", len(result.Errors))
	return result, nil
}

func verify(m *manifest.Manifest, remote map[string]storage.ObjectInfo, prefix string) []Mismatch {
	var out []Mismatch
	for _, r := range m.Records() {
		key := prefix + r.Path
		obj, ok := remote[key]
		switch {
		case !ok:
			out = append(out, Mismatch{Key: key, Missing: true, ListedSize: r.Size})
		case obj.Size != r.Size:
			out = append(out, Mismatch{Key: key, ListedSize: r.Size, RemoteSize: obj.Size})
		}
	}
	return out
}

func extraKeys(m *manifest.Manifest, objects []storage.ObjectInfo, prefix string) []string {
	var out []string
	for _, o := range objects {
		rel := strings.TrimPrefix(o.Key, prefix)
		if rel == "" || manifest.IsControlFile(rel) {
			continue
		}
		if _, ok := m.Lookup(rel); ok {
			continue
		}
		out = append(out, o.Key)
	}
	sort.Strings(out)
	return out
}

func (p *Pruner) reportMismatches(mismatches []Mismatch) {
	missing, sized := 0, 0
	for _, mm := range mismatches {
		if mm.Missing {
			missing++
		} else {
			sized++
		}
	}
	p.logger.Error("remote objects do not match manifest, skipping delete",
		"missing", missing, "size_mismatch", sized)

	for i, mm := range mismatches {
		if i == maxExamples {
			p.logger.Error("further mismatches omitted", "count", len(mismatches)-maxExamples)
			break
		}
		if mm.Missing {
			p.logger.Error("missing remote object", "key", mm.Key)
		} else {
			p.logger.Error("remote size mismatch", "key", mm.Key,
				"listed", mm.ListedSize, "remote", mm.RemoteSize)
		}
	}
}
