package delta

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/fpcache"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/hasher"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

func keys(entries []objtypes.DeltaEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

// setup writes files under /site and returns their local records.
func setup(t *testing.T, files map[string]string, order ...string) (*localfs.FS, []manifest.LocalRecord) {
	t.Helper()
	fs := localfs.NewInMemoryFS()
	testutil.WriteTree(t, fs, "/site", files)

	records := make([]manifest.LocalRecord, 0, len(order))
	for _, p := range order {
		records = append(records, manifest.LocalRecord{
			Record:    manifest.Record{Path: p, Size: int64(len(files[p]))},
			LocalPath: "/site/" + p,
		})
	}
	return fs, records
}

func TestNeedsUpload(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		want   bool
	}{
		{"equal", "abc123", "abc123", false},
		{"equal ignoring case", "ABC123", "abc123", false},
		{"different", "abc123", "def456", true},
		{"absent remote", "abc123", "", true},
		{"placeholder remote", "abc123", "-", true},
		{"multipart remote", "abc123", "d41d8cd98f00b204e9800998ecf8427e-3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsUpload(tt.local, tt.remote))
		})
	}
}

func TestCalculate(t *testing.T) {
	ctx := context.Background()

	t.Run("new and changed size skip hashing", func(t *testing.T) {
		fs, local := setup(t, map[string]string{
			"a.txt": "aaaa",
			"b.txt": "bbbbbbbb",
		}, "a.txt", "b.txt")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("aaaa"), Size: 99},
		})

		spy := testutil.NewSpyHasher(hasher.New(fs, 0))
		calc := New(spy, fpcache.New(nil), fs, 8, nil)

		result, err := calc.Calculate(ctx, local, remote, "site/")
		require.NoError(t, err)
		assert.Equal(t, []string{"site/a.txt", "site/b.txt"}, keys(result.ToUpload))
		assert.Zero(t, spy.Calls(), "size mismatch and new files must not be hashed")
		assert.Zero(t, result.HashedBytes)
	})

	t.Run("identical files are skipped", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"a.txt": "hello"}, "a.txt")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("hello"), Size: 5},
		})

		calc := New(hasher.New(fs, 0), fpcache.New(nil), fs, 8, nil)
		result, err := calc.Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Empty(t, result.ToUpload)
		assert.Equal(t, int64(5), result.HashedBytes)
	})

	t.Run("same size different content", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"a.txt": "hello"}, "a.txt")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("world"), Size: 5},
		})

		calc := New(hasher.New(fs, 0), fpcache.New(nil), fs, 8, nil)
		result, err := calc.Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		require.Len(t, result.ToUpload, 1)
		assert.Equal(t, objtypes.DeltaEntry{Key: "a.txt", LocalPath: "/site/a.txt", Size: 5}, result.ToUpload[0])
	})

	t.Run("multipart remote identifier is not uploaded", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"big.bin": "0123456789"}, "big.bin")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "big.bin", Fingerprint: "9b2cf535f27731c974343645a3985328-2", Size: 10},
		})

		calc := New(hasher.New(fs, 0), fpcache.New(nil), fs, 8, nil)
		result, err := calc.Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Empty(t, result.ToUpload)
	})

	t.Run("cache hit avoids rehash", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "a.txt", "b.txt")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("hello"), Size: 5},
			{Path: "b.txt", Fingerprint: testutil.MD5Hex("world"), Size: 5},
		})

		cache := fpcache.New(nil)
		first := testutil.NewSpyHasher(hasher.New(fs, 0))
		_, err := New(first, cache, fs, 8, nil).Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Equal(t, 2, first.Calls())
		assert.Equal(t, 2, cache.Len())

		second := testutil.NewSpyHasher(hasher.New(fs, 0))
		result, err := New(second, cache, fs, 8, nil).Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Zero(t, second.Calls(), "unchanged files must be served from cache")
		assert.Zero(t, result.HashedBytes)
		assert.Empty(t, result.ToUpload)
	})

	t.Run("hash failure schedules upload", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"a.txt": "hello", "b.txt": "world"}, "a.txt", "b.txt")
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("hello"), Size: 5},
			{Path: "b.txt", Fingerprint: testutil.MD5Hex("world"), Size: 5},
		})

		spy := testutil.NewSpyHasher(hasher.New(fs, 0))
		spy.Fail["/site/b.txt"] = errors.New("permission denied")
		handler := testutil.NewLogHandler()

		result, err := New(spy, fpcache.New(nil), fs, 8, handler.Logger()).Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt"}, keys(result.ToUpload))
		assert.True(t, handler.Contains("failed to examine file"))
	})

	t.Run("unreadable file schedules upload", func(t *testing.T) {
		fs, local := setup(t, map[string]string{"a.txt": "hello"}, "a.txt")
		require.NoError(t, fs.Remove("/site/a.txt"))
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: testutil.MD5Hex("hello"), Size: 5},
		})

		result, err := New(hasher.New(fs, 0), fpcache.New(nil), fs, 8, nil).Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, keys(result.ToUpload))
	})

	t.Run("end to end example", func(t *testing.T) {
		fs := localfs.NewInMemoryFS()
		local := []manifest.LocalRecord{
			{Record: manifest.Record{Path: "a.txt", Fingerprint: "aaa", Size: 10}, LocalPath: "/site/a.txt"},
			{Record: manifest.Record{Path: "b.txt", Fingerprint: "bbb", Size: 20}, LocalPath: "/site/b.txt"},
		}
		remote := manifest.New(objtypes.Known(1), []manifest.Record{
			{Path: "a.txt", Fingerprint: "aaa", Size: 10},
			{Path: "c.txt", Fingerprint: "ccc", Size: 5},
		})
		h := testutil.StaticHasher{"/site/a.txt": "aaa", "/site/b.txt": "bbb"}

		result, err := New(h, fpcache.New(nil), fs, 8, nil).Calculate(ctx, local, remote, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt"}, keys(result.ToUpload))
	})

	t.Run("order and progress across batches", func(t *testing.T) {
		files := make(map[string]string)
		var order []string
		for i := range 17 {
			name := fmt.Sprintf("f%02d.txt", i)
			files[name] = name
			order = append(order, name)
		}
		fs, local := setup(t, files, order...)
		handler := testutil.NewLogHandler()

		result, err := New(hasher.New(fs, 0), fpcache.New(nil), fs, 8, handler.Logger()).
			Calculate(ctx, local, manifest.Empty(), "p/")
		require.NoError(t, err)
		require.Len(t, result.ToUpload, 17)
		for i, e := range result.ToUpload {
			assert.Equal(t, "p/"+order[i], e.Key)
		}
		assert.Equal(t, 2, handler.Count("delta progress"), "logged at 10 and at 17")
	})
}
