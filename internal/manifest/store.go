package manifest

import (
	"bytes"
	"context"
	"log/slog"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// ListingPath returns the local listing file path under root.
func ListingPath(fs *localfs.FS, root string) string {
	return fs.Join(root, objtypes.ListingFile)
}

// VersionPath returns the local version file path under root.
func VersionPath(fs *localfs.FS, root string) string {
	return fs.Join(root, objtypes.VersionFile)
}

// ListingKey returns the remote listing key under prefix.
func ListingKey(prefix string) string {
	return prefix + objtypes.ListingFile
}

// VersionKey returns the remote version key under prefix.
func VersionKey(prefix string) string {
	return prefix + objtypes.VersionFile
}

// IsControlFile reports whether rel names the listing or version file at
// the top of a tree.
func IsControlFile(rel string) bool {
	return rel == objtypes.ListingFile || rel == objtypes.VersionFile
}

// LocalVersion reads the local version file. A missing or unparseable file
// yields Unknown.
func LocalVersion(fs *localfs.FS, root string) objtypes.Version {
	data, err := fs.ReadFile(VersionPath(fs, root))
	if err != nil {
		return objtypes.Unknown()
	}
	return ParseVersion(data)
}

// ReadLocal loads the listing and version files under root. If the listing
// file does not exist the returned error matches errors.ErrNotFound.
func ReadLocal(fs *localfs.FS, root string, logger *slog.Logger) (*Manifest, error) {
	listingPath := ListingPath(fs, root)

	exists, err := fs.Exists(listingPath)
	if err != nil {
		return nil, objerrors.NewIOError("read-listing", listingPath, err)
	}
	if !exists {
		return nil, objerrors.NewError("read-listing", objerrors.ErrNotFound).WithPath(listingPath)
	}

	f, err := fs.Open(listingPath)
	if err != nil {
		return nil, objerrors.NewIOError("read-listing", listingPath, err)
	}
	defer f.Close()

	records, err := ParseListing(f, logger)
	if err != nil {
		return nil, objerrors.NewIOError("read-listing", listingPath, err)
	}

	return New(LocalVersion(fs, root), records), nil
}

// WriteLocal writes m as the listing file and version as the version file
// under root. The listing is written first.
func WriteLocal(fs *localfs.FS, root string, m *Manifest, version int64) error {
	var buf bytes.Buffer
	if err := FormatListing(&buf, m.Records()); err != nil {
		return err
	}

	listingPath := ListingPath(fs, root)
	if err := fs.WriteFileAtomic(listingPath, buf.Bytes()); err != nil {
		return objerrors.NewIOError("write-listing", listingPath, err)
	}

	versionPath := VersionPath(fs, root)
	if err := fs.WriteFileAtomic(versionPath, FormatVersion(version)); err != nil {
		return objerrors.NewIOError("write-version", versionPath, err)
	}

	m.Version = objtypes.Known(version)
	return nil
}

// RemoteVersion fetches the remote version marker. A missing or
// unparseable marker yields Unknown; any other backend failure is returned.
func RemoteVersion(ctx context.Context, backend storage.Backend, prefix string) (objtypes.Version, error) {
	key := VersionKey(prefix)

	data, err := backend.Get(ctx, key)
	if err != nil {
		if objerrors.IsNotFound(err) {
			return objtypes.Unknown(), nil
		}
		return objtypes.Unknown(), objerrors.NewBackendError("fetch-version", key, err)
	}

	return ParseVersion(data), nil
}

// FetchRemote downloads the remote listing. A missing or unreadable listing
// is an empty manifest; any other backend failure is returned.
func FetchRemote(ctx context.Context, backend storage.Backend, prefix string, logger *slog.Logger) (*Manifest, error) {
	key := ListingKey(prefix)

	data, err := backend.Get(ctx, key)
	if err != nil {
		if objerrors.IsNotFound(err) {
			return Empty(), nil
		}
		return nil, objerrors.NewBackendError("fetch-listing", key, err)
	}

	records, err := ParseListing(bytes.NewReader(data), logger)
	if err != nil {
		if logger != nil {
			perr := objerrors.NewParseError("fetch-listing", key, err)
			logger.Warn("remote listing unreadable, treating remote as empty", "key", key, "error", perr)
		}
		return Empty(), nil
	}

	return New(objtypes.Unknown(), records), nil
}
