// Package hasher computes content fingerprints for local files.
package hasher

import (
	"crypto/md5" //nolint:gosec // fingerprints match S3 single-part ETags, not a security boundary
	"encoding/hex"
	"errors"
	"io"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/pool"
)

// Hasher computes the fingerprint of a local file.
type Hasher interface {
	Hash(path string) (string, error)
}

// MD5Hasher streams files through MD5 in fixed-size chunks.
type MD5Hasher struct {
	fs      *localfs.FS
	buffers *pool.BufferPool
}

// New creates an MD5Hasher reading chunkSize bytes at a time.
// A chunkSize <= 0 selects 1 MiB.
func New(fs *localfs.FS, chunkSize int) *MD5Hasher {
	if fs == nil {
		fs = localfs.NewOSFS()
	}
	return &MD5Hasher{
		fs:      fs,
		buffers: pool.ForSize(chunkSize),
	}
}

// ChunkSize returns the read size in bytes.
func (h *MD5Hasher) ChunkSize() int {
	return h.buffers.Size()
}

// Hash returns the lowercase hex MD5 of the file at path.
func (h *MD5Hasher) Hash(path string) (string, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return "", objerrors.NewIOError("hash", path, err)
	}
	defer f.Close()

	buf := h.buffers.Get()
	defer h.buffers.Put(buf)

	sum := md5.New() //nolint:gosec // see import
	for {
		n, rerr := f.Read(*buf)
		if n > 0 {
			sum.Write((*buf)[:n])
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", objerrors.NewIOError("hash", path, rerr)
		}
	}

	return hex.EncodeToString(sum.Sum(nil)), nil
}

var _ Hasher = (*MD5Hasher)(nil)
