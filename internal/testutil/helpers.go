package testutil

import (
	"crypto/md5" //nolint:gosec // test fingerprints
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
)

// WriteTree writes files (relative path -> content) under root.
func WriteTree(t *testing.T, fs *localfs.FS, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		require.NoError(t, fs.WriteFile(fs.Join(root, rel), []byte(content), 0o644))
	}
}

// MD5Hex returns the hex MD5 of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // test fingerprints
	return hex.EncodeToString(sum[:])
}
