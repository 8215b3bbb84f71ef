// Package localfs adapts a catalyst filesystem for local file access during
// sync. Errors are prefixed with the failing operation and path.
package localfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
)

// rawer is implemented by filesystems backed by go-billy.
type rawer interface {
	Raw() billy.Filesystem
}

// FS wraps a catalyst filesystem and adds atomic writes on top.
type FS struct {
	fs fs.Filesystem
}

// New creates an FS over the given filesystem.
// A nil filesystem selects the OS filesystem.
func New(fsys fs.Filesystem) *FS {
	if fsys == nil {
		return NewOSFS()
	}
	return &FS{fs: fsys}
}

// NewOSFS creates an FS over the host filesystem that accepts absolute paths.
func NewOSFS() *FS {
	return &FS{fs: fsbilly.NewOSFS("/")}
}

// NewInMemoryFS creates an in-memory FS.
func NewInMemoryFS() *FS {
	return &FS{fs: fsbilly.NewInMemoryFS()}
}

// Open opens the named file for reading.
//
//nolint:ireturn // fs.File is the upstream handle type.
func (f *FS) Open(name string) (fs.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("localfs: open %q: %w", name, err)
	}
	return file, nil
}

// Stat returns file info for name.
func (f *FS) Stat(name string) (os.FileInfo, error) {
	info, err := f.fs.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("localfs: stat %q: %w", name, err)
	}
	return info, nil
}

// Exists reports whether name exists.
func (f *FS) Exists(name string) (bool, error) {
	ok, err := f.fs.Exists(name)
	if err != nil {
		return false, fmt.Errorf("localfs: exists %q: %w", name, err)
	}
	return ok, nil
}

// ReadFile reads the whole file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	data, err := f.fs.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("localfs: readfile %q: %w", name, err)
	}
	return data, nil
}

// ReadDir lists the entries of dirname.
func (f *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	entries, err := f.fs.ReadDir(dirname)
	if err != nil {
		return nil, fmt.Errorf("localfs: readdir %q: %w", dirname, err)
	}
	return entries, nil
}

// MkdirAll creates dir and any missing parents.
func (f *FS) MkdirAll(dir string, perm os.FileMode) error {
	if err := f.fs.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("localfs: mkdirall %q: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to name and renames
// it into place, so readers never see a partial file.
func (f *FS) WriteFileAtomic(name string, data []byte) error {
	return f.CopyAtomic(name, bytes.NewReader(data))
}

// CopyAtomic streams r into a temporary file next to name and renames it
// into place. Filesystems that are not backed by go-billy have no rename
// and get a direct write.
func (f *FS) CopyAtomic(name string, r io.Reader) error {
	dir := path.Dir(filepath.ToSlash(name))
	if err := f.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	rw, ok := f.fs.(rawer)
	if !ok {
		return f.copyDirect(name, r)
	}
	raw := rw.Raw()

	tmp, err := util.TempFile(raw, dir, ".tmp-"+path.Base(filepath.ToSlash(name)))
	if err != nil {
		return fmt.Errorf("localfs: tempfile %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = raw.Remove(tmpName)
		return fmt.Errorf("localfs: write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = raw.Remove(tmpName)
		return fmt.Errorf("localfs: close %q: %w", tmpName, err)
	}
	if err := raw.Rename(tmpName, name); err != nil {
		_ = raw.Remove(tmpName)
		return fmt.Errorf("localfs: rename %q: %w", name, err)
	}
	return nil
}

func (f *FS) copyDirect(name string, r io.Reader) error {
	file, err := f.fs.Create(name)
	if err != nil {
		return fmt.Errorf("localfs: create %q: %w", name, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return fmt.Errorf("localfs: write %q: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("localfs: close %q: %w", name, err)
	}
	return nil
}

// WriteFile writes data to name, creating parent directories.
func (f *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := f.MkdirAll(path.Dir(filepath.ToSlash(name)), 0o755); err != nil {
		return err
	}
	if err := f.fs.WriteFile(name, data, perm); err != nil {
		return fmt.Errorf("localfs: writefile %q: %w", name, err)
	}
	return nil
}

// CreateExclusive creates name and fails with an error matching
// os.ErrExist if it is already present.
func (f *FS) CreateExclusive(name string) error {
	if err := f.MkdirAll(path.Dir(filepath.ToSlash(name)), 0o755); err != nil {
		return err
	}
	file, err := f.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("localfs: create %q: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("localfs: close %q: %w", name, err)
	}
	return nil
}

// HostPath maps name to a path on the host filesystem. It reports false
// when the filesystem is not backed by the OS, for example in memory.
func (f *FS) HostPath(name string) (string, bool) {
	rw, ok := f.fs.(rawer)
	if !ok {
		return "", false
	}
	raw := rw.Raw()

	switch b := raw.(type) {
	case *osfs.BoundOS:
		return filepath.Join(b.Root(), name), true
	case *fsbilly.BaseOSFS:
		return filepath.Join(b.Root(), name), true
	}

	u, ok := raw.(interface{ Underlying() billy.Basic })
	if !ok {
		return "", false
	}
	if _, ok := u.Underlying().(*osfs.ChrootOS); !ok {
		return "", false
	}
	root := "/"
	if c, ok := raw.(billy.Chroot); ok {
		root = c.Root()
	}
	return filepath.Join(root, name), true
}

// Remove removes the named file.
func (f *FS) Remove(name string) error {
	if err := f.fs.Remove(name); err != nil {
		return fmt.Errorf("localfs: remove %q: %w", name, err)
	}
	return nil
}

// Walk walks the tree rooted at root.
func (f *FS) Walk(root string, walkFn filepath.WalkFunc) error {
	if err := f.fs.Walk(root, walkFn); err != nil {
		return fmt.Errorf("localfs: walk %q: %w", root, err)
	}
	return nil
}

// Join joins path elements.
func (f *FS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// Filesystem returns the underlying catalyst filesystem.
//
//nolint:ireturn // exposes the adapter target.
func (f *FS) Filesystem() fs.Filesystem {
	return f.fs
}
