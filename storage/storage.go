// Package storage defines the object-store contract used by sync runs.
//
// Implementations live in subpackages: s3 (aws-sdk-go-v2), minio
// (minio-go) and dirstore (a local directory used as a remote).
package storage

import (
	"context"
)

// DefaultPageSize is the page size used when walking a whole prefix.
const DefaultPageSize = 1000

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Key is the full object key
	Key string

	// Size is the object size in bytes
	Size int64

	// ETag is the backend content identifier with surrounding quotes removed
	ETag string
}

// ListPage is one page of a listing.
type ListPage struct {
	// Objects are the keys on this page, in lexical order
	Objects []ObjectInfo

	// NextPageToken continues the listing; empty on the last page
	NextPageToken string
}

// Backend is a key/value object store.
//
// Keys are forward-slash paths. Get returns an error matching
// errors.ErrNotFound when the key is absent. Put reads the object body
// from a local file path so implementations can stream or split it.
type Backend interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns the full object body.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads the file at localPath under key.
	Put(ctx context.Context, localPath, key string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns up to pageSize objects under prefix, starting after
	// pageToken.
	List(ctx context.Context, prefix string, pageSize int, pageToken string) (*ListPage, error)
}

// ListAll walks every page under prefix and returns all objects.
func ListAll(ctx context.Context, b Backend, prefix string, pageSize int) ([]ObjectInfo, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		objects []ObjectInfo
		token   string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := b.List(ctx, prefix, pageSize, token)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return objects, nil
		}
		token = page.NextPageToken
	}
}
