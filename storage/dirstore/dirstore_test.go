package dirstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

func newStore(t *testing.T, files map[string]string) *Store {
	t.Helper()
	return New(fsbilly.NewInMemoryFS(), WithSource(newSource(t, files)))
}

func newSource(t *testing.T, files map[string]string) fs.Filesystem {
	t.Helper()
	source := fsbilly.NewInMemoryFS()
	for name, content := range files {
		require.NoError(t, source.WriteFile(name, []byte(content), 0o644))
	}
	return source
}

// readDirRecorder records the directories List reads.
type readDirRecorder struct {
	fs.Filesystem
	mu   sync.Mutex
	dirs []string
}

func (r *readDirRecorder) ReadDir(dirname string) ([]os.FileInfo, error) {
	r.mu.Lock()
	r.dirs = append(r.dirs, dirname)
	r.mu.Unlock()
	return r.Filesystem.ReadDir(dirname)
}

func (r *readDirRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	dirs := r.dirs
	r.dirs = nil
	return dirs
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put get exists delete", func(t *testing.T) {
		s := newStore(t, map[string]string{"/src/a.txt": "hello"})

		require.NoError(t, s.Put(ctx, "/src/a.txt", "site/a.txt"))

		ok, err := s.Exists(ctx, "site/a.txt")
		require.NoError(t, err)
		assert.True(t, ok)

		data, err := s.Get(ctx, "site/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		require.NoError(t, s.Delete(ctx, "site/a.txt"))
		ok, err = s.Exists(ctx, "site/a.txt")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Delete(ctx, "site/a.txt"), "deleting twice is fine")
	})

	t.Run("get missing is not found", func(t *testing.T) {
		s := newStore(t, nil)
		_, err := s.Get(ctx, "nope.txt")
		require.Error(t, err)
		assert.True(t, objerrors.IsNotFound(err))
	})

	t.Run("put missing source is an io error", func(t *testing.T) {
		s := newStore(t, nil)
		err := s.Put(ctx, "/src/missing", "k")
		require.Error(t, err)
		assert.True(t, objerrors.IsIO(err))
	})

	t.Run("invalid keys", func(t *testing.T) {
		s := newStore(t, map[string]string{"/src/a": "a"})
		for _, key := range []string{"", "dir/", "../escape", "a/../../b"} {
			err := s.Put(ctx, "/src/a", key)
			require.Error(t, err, key)
			assert.True(t, objerrors.IsInvalidInput(err), key)
		}
	})

	t.Run("list pages in key order", func(t *testing.T) {
		files := make(map[string]string)
		for i := range 5 {
			files[fmt.Sprintf("/src/f%d", i)] = "x"
		}
		s := newStore(t, files)
		for i := range 5 {
			require.NoError(t, s.Put(ctx, fmt.Sprintf("/src/f%d", i), fmt.Sprintf("p/f%d", i)))
		}
		require.NoError(t, s.Put(ctx, "/src/f0", "other/f0"))

		page, err := s.List(ctx, "p/", 2, "")
		require.NoError(t, err)
		require.Len(t, page.Objects, 2)
		assert.Equal(t, "p/f0", page.Objects[0].Key)
		assert.Equal(t, int64(1), page.Objects[0].Size)
		assert.Equal(t, "p/f1", page.NextPageToken)

		all, err := storage.ListAll(ctx, s, "p/", 2)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("list orders keys across directories", func(t *testing.T) {
		s := newStore(t, map[string]string{"/src/x": "x"})
		for _, key := range []string{"q/a/x", "q/a.txt", "q/a-b"} {
			require.NoError(t, s.Put(ctx, "/src/x", key))
		}

		all, err := storage.ListAll(ctx, s, "q/", 1)
		require.NoError(t, err)
		keys := make([]string, 0, len(all))
		for _, o := range all {
			keys = append(keys, o.Key)
		}
		assert.Equal(t, []string{"q/a-b", "q/a.txt", "q/a/x"}, keys)
	})

	t.Run("list skips subtrees earlier pages covered", func(t *testing.T) {
		inner := fsbilly.NewInMemoryFS()
		writer := New(inner, WithSource(newSource(t, map[string]string{"/src/x": "x"})))
		for _, key := range []string{"p/a/1", "p/a/2", "p/b/1", "p/b/2", "p/c.txt", "other/x"} {
			require.NoError(t, writer.Put(ctx, "/src/x", key))
		}

		rec := &readDirRecorder{Filesystem: inner}
		s := New(rec)

		page, err := s.List(ctx, "p/", 2, "")
		require.NoError(t, err)
		assert.Equal(t, "p/a/2", page.NextPageToken)
		assert.NotContains(t, rec.take(), "/", "walk starts at the prefix directory")

		page, err = s.List(ctx, "p/", 2, page.NextPageToken)
		require.NoError(t, err)
		require.Len(t, page.Objects, 2)
		assert.Equal(t, "p/b/1", page.Objects[0].Key)
		assert.Equal(t, "p/b/2", page.NextPageToken)
		rec.take()

		page, err = s.List(ctx, "p/", 2, page.NextPageToken)
		require.NoError(t, err)
		require.Len(t, page.Objects, 1)
		assert.Equal(t, "p/c.txt", page.Objects[0].Key)
		assert.Empty(t, page.NextPageToken)
		dirs := rec.take()
		assert.NotContains(t, dirs, "/p/a")
		assert.NotContains(t, dirs, "/other")
	})

	t.Run("list hides in-flight writes", func(t *testing.T) {
		inner := fsbilly.NewInMemoryFS()
		require.NoError(t, inner.WriteFile("/p/.tmp-a.txt123", []byte("x"), 0o644))
		require.NoError(t, inner.WriteFile("/p/a.txt", []byte("x"), 0o644))

		page, err := New(inner).List(ctx, "p/", 10, "")
		require.NoError(t, err)
		require.Len(t, page.Objects, 1)
		assert.Equal(t, "p/a.txt", page.Objects[0].Key)
	})

	t.Run("empty store lists nothing", func(t *testing.T) {
		page, err := newStore(t, nil).List(ctx, "", 10, "")
		require.NoError(t, err)
		assert.Empty(t, page.Objects)
		assert.Empty(t, page.NextPageToken)
	})
}

func TestOSStore(t *testing.T) {
	ctx := context.Background()
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	s := NewOS(dstDir)
	require.NoError(t, s.Put(ctx, src, "nested/dir/a.txt"))

	data, err := os.ReadFile(filepath.Join(dstDir, "nested", "dir", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
