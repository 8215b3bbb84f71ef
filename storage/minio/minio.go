// Package minio implements storage.Backend with minio-go for MinIO and
// other S3-compatible servers.
package minio

import (
	"context"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// Options configures the backend.
type Options struct {
	AccessKey string
	SecretKey string

	// Secure enables TLS.
	Secure bool

	// Region skips the bucket location lookup when set.
	Region string

	// Filesystem is where Put reads local files from. Default is the OS root.
	Filesystem fs.Filesystem
}

// Option configures the backend.
type Option func(*Options)

// WithCredentials sets static access keys.
func WithCredentials(accessKey, secretKey string) Option {
	return func(o *Options) {
		o.AccessKey = accessKey
		o.SecretKey = secretKey
	}
}

// WithSecure enables or disables TLS.
func WithSecure(secure bool) Option {
	return func(o *Options) {
		o.Secure = secure
	}
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(o *Options) {
		o.Region = region
	}
}

// WithFilesystem sets the filesystem local files are read from.
func WithFilesystem(filesystem fs.Filesystem) Option {
	return func(o *Options) {
		o.Filesystem = filesystem
	}
}

// Backend stores objects in a single bucket.
type Backend struct {
	client *minio.Client
	bucket string
	fs     fs.Filesystem
}

var _ storage.Backend = (*Backend)(nil)

// New connects to the server at endpoint (host:port, no scheme).
func New(endpoint, bucket string, opts ...Option) (*Backend, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if endpoint == "" || bucket == "" {
		return nil, objerrors.NewError("minio-init", objerrors.ErrInvalidInput).
			WithMessage("endpoint and bucket are required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.Secure,
		Region: o.Region,
	})
	if err != nil {
		return nil, objerrors.NewBackendError("minio-init", "", err)
	}

	filesystem := o.Filesystem
	if filesystem == nil {
		filesystem = fsbilly.NewOSFS("/")
	}

	return &Backend{
		client: client,
		bucket: bucket,
		fs:     filesystem,
	}, nil
}

// Client returns the underlying minio client.
func (b *Backend) Client() *minio.Client {
	return b.client
}

// Exists reports whether key is present.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, objerrors.NewBackendError("exists", key, err)
	}
	return true, nil
}

// Get returns the full body of key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError("get", key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError("get", key, err)
	}
	return data, nil
}

// Put streams the file at localPath to key.
func (b *Backend) Put(ctx context.Context, localPath, key string) error {
	info, err := b.fs.Stat(localPath)
	if err != nil {
		return objerrors.NewIOError("put", localPath, err).WithKey(key)
	}

	f, err := b.fs.Open(localPath)
	if err != nil {
		return objerrors.NewIOError("put", localPath, err).WithKey(key)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.ReadAt(head, 0)

	_, err = b.client.PutObject(
		ctx,
		b.bucket,
		key,
		io.NewSectionReader(f, 0, info.Size()),
		info.Size(),
		minio.PutObjectOptions{
			ContentType: mimetype.Detect(head[:n]).String(),
		},
	)
	if err != nil {
		return objerrors.NewBackendError("put", key, err).WithPath(localPath)
	}
	return nil
}

// Delete removes key. Removing an absent key succeeds.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return objerrors.NewBackendError("delete", key, err)
	}
	return nil
}

// List returns up to pageSize objects under prefix. The page token is the
// last key of the previous page, passed to the server as StartAfter.
func (b *Backend) List(ctx context.Context, prefix string, pageSize int, pageToken string) (*storage.ListPage, error) {
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}

	// Cancelling stops the listing goroutine once the page is full.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: pageToken,
		MaxKeys:    pageSize,
	})

	page := &storage.ListPage{}
	for obj := range objects {
		if obj.Err != nil {
			return nil, objerrors.NewBackendError("list", prefix, obj.Err)
		}
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:  obj.Key,
			Size: obj.Size,
			ETag: strings.Trim(obj.ETag, `"`),
		})
		if len(page.Objects) == pageSize {
			page.NextPageToken = obj.Key
			break
		}
	}
	return page, nil
}

// isNotFound reports whether err is a missing-object response.
// A missing bucket is not treated as a missing object.
func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func translateError(op, key string, err error) error {
	if isNotFound(err) {
		return objerrors.NewNotFoundError(op, key)
	}
	return objerrors.NewBackendError(op, key, err)
}
