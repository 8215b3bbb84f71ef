// Package objtypes provides shared type definitions for the objsync module.
package objtypes

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
)

const (
	// DefaultWorkers is the default number of files in flight per batch.
	DefaultWorkers = 8

	// DefaultHashChunkMiB is the default read size used while hashing.
	DefaultHashChunkMiB = 4

	// VersionFile is the name of the version marker, locally and remotely.
	VersionFile = "version.txt"

	// ListingFile is the name of the manifest listing, locally and remotely.
	ListingFile = "filelist.txt"

	// StateDir holds per-root sync state such as the fingerprint cache.
	StateDir = ".objsync"
)

// Config holds the configuration consumed by a sync run.
type Config struct {
	// Workers bounds how many files are hashed or uploaded at once
	Workers int

	// HashChunkMiB is the streaming read size for content hashing
	HashChunkMiB int

	// Prefix is the remote key prefix, normalized to end with "/"
	Prefix string

	// LocalRoot is the local directory being synchronized
	LocalRoot string

	// CachePath is where the fingerprint cache is persisted
	CachePath string

	// LockFile, when set, is a path on Filesystem guarded by an exclusive lock
	LockFile string

	// DeleteExtra removes remote objects that the manifest does not list
	DeleteExtra bool

	// AllowRootPrune lets DeleteExtra run with an empty prefix
	AllowRootPrune bool

	// ExcludePatterns are gitignore-style patterns skipped by the local scan
	ExcludePatterns []string

	// Filesystem is the local filesystem; nil means the OS filesystem
	Filesystem fs.Filesystem

	// Logger receives structured logs; nil disables logging
	Logger *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

// Version is the remote or local version marker.
// It is either Known(n) or Unknown; Unknown forces a full diff.
type Version struct {
	n     int64
	known bool
}

// Known returns a version marker holding n.
func Known(n int64) Version {
	return Version{n: n, known: true}
}

// Unknown returns the marker used when no valid version could be read.
func Unknown() Version {
	return Version{}
}

// Value returns the number and whether the version is known.
func (v Version) Value() (int64, bool) {
	return v.n, v.known
}

// IsKnown reports whether the version was read successfully.
func (v Version) IsKnown() bool {
	return v.known
}

// Int returns the numeric form, with -1 standing for Unknown.
func (v Version) Int() int64 {
	if !v.known {
		return -1
	}
	return v.n
}

// Matches reports whether both versions are known and equal.
func (v Version) Matches(other Version) bool {
	return v.known && other.known && v.n == other.n
}

// String implements fmt.Stringer.
func (v Version) String() string {
	if !v.known {
		return "unknown"
	}
	return strconv.FormatInt(v.n, 10)
}

// NextVersion returns one more than the highest known of the given versions,
// or 1 when none are known.
func NextVersion(versions ...Version) int64 {
	var highest int64
	for _, v := range versions {
		if v.known && v.n > highest {
			highest = v.n
		}
	}
	return highest + 1
}

// VersionState is the terminal state of a sync run.
type VersionState string

const (
	// StateUpToDate means local and remote version markers matched
	StateUpToDate VersionState = "up-to-date"

	// StateNeedsSync means versions differed and a diff is required
	StateNeedsSync VersionState = "needs-sync"

	// StateDone means a diff and upload pass completed
	StateDone VersionState = "done"
)

// VersionStatus is the outcome of comparing version markers.
type VersionStatus struct {
	// Local is the version marker under the local root
	Local Version

	// Remote is the version marker under the remote prefix
	Remote Version

	// State is StateUpToDate when both are known and equal, else StateNeedsSync
	State VersionState
}

// ManifestSummary describes a freshly written local listing.
type ManifestSummary struct {
	// Files is the number of records written
	Files int

	// TotalSize is the sum of record sizes
	TotalSize int64

	// Version is the version marker written next to the listing
	Version int64
}

// DeltaEntry is a local file that must be uploaded under Key.
type DeltaEntry struct {
	// Key is the remote object key
	Key string

	// LocalPath is the path of the file on the local filesystem
	LocalPath string

	// Size is the size recorded for the file when it was scanned
	Size int64
}

// SyncError describes a non-fatal failure recorded during a run.
type SyncError struct {
	// Path is the local path or remote key involved
	Path string

	// Code classifies the failure
	Code objerrors.Code

	// Message is the human-readable error text
	Message string
}

// SyncResult reports the outcome of a sync run. It is never persisted.
type SyncResult struct {
	// ScannedLocal is the number of records in the local manifest
	ScannedLocal int

	// ScannedRemote is the number of records in the remote manifest
	ScannedRemote int

	// Uploaded is the number of data files uploaded (control files excluded)
	Uploaded int

	// Deleted is the number of extra remote objects removed
	Deleted int

	// Failed is the number of data files whose upload failed
	Failed int

	// TotalSize is the number of bytes uploaded
	TotalSize int64

	// HashedBytes is the number of bytes freshly hashed during the diff
	HashedBytes int64

	// ElapsedTime is the wall-clock duration of the run
	ElapsedTime time.Duration

	// State is the terminal protocol state
	State VersionState

	// Errors holds per-file and pruning failures
	Errors []SyncError
}
