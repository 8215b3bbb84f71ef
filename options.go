package objsync

import (
	"log/slog"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

// WithWorkers sets how many files are hashed or uploaded at once.
// Default is 8. Values <= 0 are ignored.
func WithWorkers(n int) objtypes.Option {
	return func(c *objtypes.Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithHashChunkMiB sets the read size used while hashing, in MiB.
// Default is 4. Values <= 0 are ignored.
func WithHashChunkMiB(n int) objtypes.Option {
	return func(c *objtypes.Config) {
		if n > 0 {
			c.HashChunkMiB = n
		}
	}
}

// WithPrefix sets the remote key prefix. A non-empty prefix is normalized
// to end with "/".
func WithPrefix(prefix string) objtypes.Option {
	return func(c *objtypes.Config) {
		c.Prefix = prefix
	}
}

// WithLocalRoot sets the local directory to synchronize. Required.
func WithLocalRoot(dir string) objtypes.Option {
	return func(c *objtypes.Config) {
		c.LocalRoot = dir
	}
}

// WithCachePath sets where the fingerprint cache is stored.
// Default is <root>/.objsync/fingerprints.json.
func WithCachePath(path string) objtypes.Option {
	return func(c *objtypes.Config) {
		c.CachePath = path
	}
}

// WithLockFile guards runs against the same root with an exclusive lock at
// path on the configured filesystem. On the host filesystem this is an
// advisory file lock; other filesystems get an exclusively created marker
// file. A run fails with errors.ErrLocked if the lock is held.
func WithLockFile(path string) objtypes.Option {
	return func(c *objtypes.Config) {
		c.LockFile = path
	}
}

// WithDeleteExtra removes remote objects under the prefix that the local
// listing does not name. Default is false.
func WithDeleteExtra(enabled bool) objtypes.Option {
	return func(c *objtypes.Config) {
		c.DeleteExtra = enabled
	}
}

// WithRootPrune allows WithDeleteExtra to act on the whole bucket when the
// prefix is empty. Without it such a run skips the delete step and reports
// an error. Default is false.
func WithRootPrune(enabled bool) objtypes.Option {
	return func(c *objtypes.Config) {
		c.AllowRootPrune = enabled
	}
}

// WithExcludePatterns adds gitignore-style patterns skipped when a local
// listing is built.
func WithExcludePatterns(patterns ...string) objtypes.Option {
	return func(c *objtypes.Config) {
		c.ExcludePatterns = append(c.ExcludePatterns, patterns...)
	}
}

// WithFilesystem sets the local filesystem. Default is the OS filesystem.
func WithFilesystem(filesystem fs.Filesystem) objtypes.Option {
	return func(c *objtypes.Config) {
		c.Filesystem = filesystem
	}
}

// WithLogger sets the structured logger. Default discards all output.
func WithLogger(logger *slog.Logger) objtypes.Option {
	return func(c *objtypes.Config) {
		c.Logger = logger
	}
}
