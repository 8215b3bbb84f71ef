// Package dirstore implements storage.Backend over a catalyst filesystem.
//
// Object keys map to files under the store root. It serves as a local
// mirror target and as an inspectable backend in tests.
package dirstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// tempPrefix marks in-flight writes, which List never reports.
const tempPrefix = ".tmp-"

// Store is a directory-backed object store.
type Store struct {
	fs     fs.Filesystem
	source fs.Filesystem
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets the filesystem Put reads local files from.
// Default is the OS filesystem.
func WithSource(filesystem fs.Filesystem) Option {
	return func(s *Store) {
		s.source = filesystem
	}
}

// New creates a Store keeping objects in fs. Keys are paths relative to
// the root of filesystem.
func New(filesystem fs.Filesystem, opts ...Option) *Store {
	s := &Store{fs: filesystem}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		s.source = fsbilly.NewOSFS("/")
	}
	return s
}

// NewOS creates a Store keeping objects under the OS directory dir.
func NewOS(dir string, opts ...Option) *Store {
	return New(fsbilly.NewOSFS(dir), opts...)
}

func objectPath(op, key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", objerrors.NewError(op, fmt.Errorf("%w: invalid key %q", objerrors.ErrInvalidInput, key))
	}
	clean := path.Clean("/" + key)
	if clean != "/"+strings.TrimPrefix(key, "/") {
		return "", objerrors.NewError(op, fmt.Errorf("%w: invalid key %q", objerrors.ErrInvalidInput, key))
	}
	return clean, nil
}

// Exists implements storage.Backend.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	p, err := objectPath("exists", key)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, objerrors.NewBackendError("exists", key, err)
	}
}

// Get implements storage.Backend.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	p, err := objectPath("get", key)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, objerrors.NewNotFoundError("get", key)
		}
		return nil, objerrors.NewBackendError("get", key, err)
	}
	return data, nil
}

// Put implements storage.Backend. The object is written to a temporary
// file and renamed into place.
func (s *Store) Put(ctx context.Context, localPath, key string) error {
	p, err := objectPath("put", key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.source.Open(localPath)
	if err != nil {
		return objerrors.NewIOError("put", localPath, err).WithKey(key)
	}
	defer src.Close()

	if err := localfs.New(s.fs).CopyAtomic(p, src); err != nil {
		return objerrors.NewBackendError("put", key, err).WithPath(localPath)
	}
	return nil
}

// Delete implements storage.Backend.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := objectPath("delete", key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return objerrors.NewBackendError("delete", key, err)
	}
	return nil
}

// List implements storage.Backend. Keys are returned in lexical order and
// the page token is the last key of the previous page.
//
// Only the directory holding prefix is walked. Subtrees whose keys all sort
// at or before the token, or after an already full page, are skipped, so
// paging through a store does not re-read what earlier pages covered.
func (s *Store) List(ctx context.Context, prefix string, pageSize int, pageToken string) (*storage.ListPage, error) {
	l := &lister{
		ctx:    ctx,
		fs:     s.fs,
		prefix: prefix,
		token:  pageToken,
		limit:  pageSize,
	}
	if err := l.walk(path.Dir("/" + prefix)); err != nil {
		return nil, objerrors.NewBackendError("list", prefix, err)
	}

	page := &storage.ListPage{Objects: l.objects}
	if pageSize > 0 && len(l.objects) > pageSize {
		page.Objects = l.objects[:pageSize]
		page.NextPageToken = l.objects[pageSize-1].Key
	}
	return page, nil
}

// lister collects the keys of one page in sorted order.
type lister struct {
	ctx     context.Context
	fs      fs.Filesystem
	prefix  string
	token   string
	limit   int
	objects []storage.ObjectInfo
}

func (l *lister) walk(dir string) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}

	entries, err := l.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		p := path.Join(dir, e.Name())
		key := strings.TrimPrefix(p, "/")

		if e.IsDir() {
			if l.wantDir(key + "/") {
				if err := l.walk(p); err != nil {
					return err
				}
			}
			continue
		}
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if !strings.HasPrefix(key, l.prefix) || key <= l.token {
			continue
		}
		if l.full() && key >= l.last() {
			continue
		}
		l.add(storage.ObjectInfo{Key: key, Size: e.Size()})
	}
	return nil
}

// wantDir reports whether the subtree whose keys all start with dir can
// hold a key for this page.
func (l *lister) wantDir(dir string) bool {
	if !strings.HasPrefix(dir, l.prefix) && !strings.HasPrefix(l.prefix, dir) {
		return false
	}
	if l.token > dir && !strings.HasPrefix(l.token, dir) {
		return false
	}
	if l.full() && dir >= l.last() {
		return false
	}
	return true
}

// full reports whether one more key than the page holds has been seen,
// which is enough to know a next page exists.
func (l *lister) full() bool {
	return l.limit > 0 && len(l.objects) > l.limit
}

func (l *lister) last() string {
	return l.objects[len(l.objects)-1].Key
}

func (l *lister) add(obj storage.ObjectInfo) {
	i := sort.Search(len(l.objects), func(i int) bool { return l.objects[i].Key >= obj.Key })
	l.objects = append(l.objects, storage.ObjectInfo{})
	copy(l.objects[i+1:], l.objects[i:])
	l.objects[i] = obj
	if l.limit > 0 && len(l.objects) > l.limit+1 {
		l.objects = l.objects[:l.limit+1]
	}
}

var _ storage.Backend = (*Store)(nil)
