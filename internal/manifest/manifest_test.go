package manifest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

func TestParseListing(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     []Record
		warnings int
	}{
		{
			name:  "well formed",
			input: "a.txt 900150983cd24fb0d6963f7d28e17f72 3\nsub/b.bin d41d8cd98f00b204e9800998ecf8427e 0\n",
			want: []Record{
				{Path: "a.txt", Fingerprint: "900150983cd24fb0d6963f7d28e17f72", Size: 3},
				{Path: "sub/b.bin", Fingerprint: "d41d8cd98f00b204e9800998ecf8427e", Size: 0},
			},
		},
		{
			name:  "blank lines and tabs",
			input: "\n\na.txt\tabc\t1\n   \n",
			want:  []Record{{Path: "a.txt", Fingerprint: "abc", Size: 1}},
		},
		{
			name:  "path with spaces",
			input: "docs/my file.txt abc 12\n",
			want:  []Record{{Path: "docs/my file.txt", Fingerprint: "abc", Size: 12}},
		},
		{
			name:     "too few fields",
			input:    "a.txt abc\nb.txt\nc.txt def 4\n",
			want:     []Record{{Path: "c.txt", Fingerprint: "def", Size: 4}},
			warnings: 2,
		},
		{
			name:     "bad size",
			input:    "a.txt abc x\nb.txt abc -1\nc.txt abc 1.5\n",
			want:     nil,
			warnings: 3,
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := testutil.NewLogHandler()
			got, err := ParseListing(strings.NewReader(tt.input), handler.Logger())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, handler.Messages(slog.LevelWarn), tt.warnings)
		})
	}
}

func TestFormatListing(t *testing.T) {
	records := []Record{
		{Path: "b.txt", Fingerprint: "bb", Size: 2},
		{Path: "a.txt", Fingerprint: "aa", Size: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, FormatListing(&buf, records))
	assert.Equal(t, "b.txt bb 2\na.txt aa 1\n", buf.String())

	parsed, err := ParseListing(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, records, parsed)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  objtypes.Version
	}{
		{"5", objtypes.Known(5)},
		{"  12\n", objtypes.Known(12)},
		{"0", objtypes.Known(0)},
		{"-1", objtypes.Unknown()},
		{"", objtypes.Unknown()},
		{"abc", objtypes.Unknown()},
		{"3 4", objtypes.Unknown()},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion([]byte(tt.input)))
		})
	}

	assert.Equal(t, "7\n", string(FormatVersion(7)))
}

func TestManifest(t *testing.T) {
	m := New(objtypes.Known(1), []Record{
		{Path: "b", Size: 2},
		{Path: "a", Size: 1},
		{Path: "b", Size: 5},
	})

	assert.Equal(t, 2, m.Len())
	rec, ok := m.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, int64(5), rec.Size, "later duplicate replaces earlier")
	assert.Equal(t, int64(6), m.TotalSize())

	sorted := m.Sorted()
	assert.Equal(t, "a", sorted.Records()[0].Path)
	assert.Equal(t, "b", m.Records()[0].Path, "original order is kept")

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestLocalStore(t *testing.T) {
	t.Run("missing listing is not found", func(t *testing.T) {
		fs := localfs.NewInMemoryFS()
		_, err := ReadLocal(fs, "/site", nil)
		require.Error(t, err)
		assert.True(t, objerrors.IsNotFound(err))
	})

	t.Run("write then read", func(t *testing.T) {
		fs := localfs.NewInMemoryFS()
		m := New(objtypes.Unknown(), []Record{{Path: "a.txt", Fingerprint: "aa", Size: 1}})
		require.NoError(t, WriteLocal(fs, "/site", m, 4))
		assert.Equal(t, objtypes.Known(4), m.Version)

		read, err := ReadLocal(fs, "/site", nil)
		require.NoError(t, err)
		assert.Equal(t, objtypes.Known(4), read.Version)
		assert.Equal(t, m.Records(), read.Records())
	})

	t.Run("missing version is unknown", func(t *testing.T) {
		fs := localfs.NewInMemoryFS()
		testutil.WriteTree(t, fs, "/site", map[string]string{objtypes.ListingFile: "a.txt aa 1\n"})

		read, err := ReadLocal(fs, "/site", nil)
		require.NoError(t, err)
		assert.False(t, read.Version.IsKnown())
	})
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("version present", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS()).Seed("site/version.txt", []byte("5\n"))
		v, err := RemoteVersion(ctx, b, "site/")
		require.NoError(t, err)
		assert.Equal(t, objtypes.Known(5), v)
	})

	t.Run("version missing or corrupt is unknown", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS())
		v, err := RemoteVersion(ctx, b, "site/")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), v.Int())

		b.Seed("site/version.txt", []byte("garbage"))
		v, err = RemoteVersion(ctx, b, "site/")
		require.NoError(t, err)
		assert.False(t, v.IsKnown())
	})

	t.Run("version backend failure propagates", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS()).
			FailOn("get", "site/version.txt", errors.New("access denied"))
		_, err := RemoteVersion(ctx, b, "site/")
		require.Error(t, err)
		assert.True(t, objerrors.IsBackend(err))
	})

	t.Run("listing missing is empty", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS())
		m, err := FetchRemote(ctx, b, "site/", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("listing present", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS()).
			Seed("filelist.txt", []byte("a.txt aa 1\nbroken\n"))
		m, err := FetchRemote(ctx, b, "", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("unreadable listing is empty", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS()).
			Seed("site/filelist.txt", bytes.Repeat([]byte("x"), 2*maxLineSize))
		m, err := FetchRemote(ctx, b, "site/", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("listing backend failure propagates", func(t *testing.T) {
		b := testutil.NewMemoryBackend(localfs.NewInMemoryFS()).
			FailOn("get", "*", errors.New("boom"))
		_, err := FetchRemote(ctx, b, "site/", nil)
		require.Error(t, err)
		assert.True(t, objerrors.IsBackend(err))
		assert.Equal(t, objerrors.CodeBackend, objerrors.CodeOf(err))
	})

	assert.True(t, IsControlFile("filelist.txt"))
	assert.True(t, IsControlFile("version.txt"))
	assert.False(t, IsControlFile("sub/version.txt"))
}

func TestLocalize(t *testing.T) {
	fs := localfs.NewInMemoryFS()
	m := New(objtypes.Unknown(), []Record{{Path: "sub/a.txt", Size: 1}})

	local := Localize(fs, "/site", m)
	require.Len(t, local, 1)
	assert.Equal(t, "/site/sub/a.txt", local[0].LocalPath)
	assert.Equal(t, "sub/a.txt", local[0].Path)
}
