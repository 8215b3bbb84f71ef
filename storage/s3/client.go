// Package s3 implements storage.Backend on Amazon S3 and S3-compatible
// services through aws-sdk-go-v2.
package s3

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsbilly "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage"
)

// sniffLen is how many leading bytes are read for content type detection.
const sniffLen = 512

// Client is an S3 bucket backend. It is safe for concurrent use.
type Client struct {
	api    API
	bucket string
	opts   Options
	fs     fs.Filesystem
}

var _ storage.Backend = (*Client)(nil)

// New creates a backend for bucket. Credentials come from the AWS default
// chain unless WithCredentials or WithAWSConfig is given.
//
// Example:
//
//	backend, err := s3.New(ctx, "my-site",
//	    s3.WithRegion("eu-central-1"),
//	    s3.WithConcurrency(8),
//	)
func New(ctx context.Context, bucket string, opts ...Option) (*Client, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if bucket == "" {
		return nil, objerrors.NewError("s3-init", objerrors.ErrInvalidInput).WithMessage("bucket is required")
	}

	retryer := o.Retryer
	if retryer == nil {
		retryer = NewRetryer(0, 0, 0)
	}

	var cfg aws.Config
	if o.AWSConfig != nil {
		cfg = o.AWSConfig.Copy()
	} else {
		loadOpts := []func(*config.LoadOptions) error{
			config.WithRetryer(func() aws.Retryer { return retryer }),
		}
		if o.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.Region))
		}
		if o.AccessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken),
			))
		}

		var err error
		cfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, objerrors.NewBackendError("s3-init", "", err)
		}
	}

	if o.Region != "" {
		cfg.Region = o.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	api := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.Retryer = retryer
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		if o.ForcePathStyle {
			so.UsePathStyle = true
		}
		if o.Timeout > 0 {
			so.HTTPClient = &http.Client{Timeout: o.Timeout}
		}
	})

	return NewWithClient(api, bucket, opts...), nil
}

// NewWithClient creates a backend over an existing API implementation.
// Options that configure the SDK client are ignored.
func NewWithClient(api API, bucket string, opts ...Option) *Client {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	filesystem := o.Filesystem
	if filesystem == nil {
		filesystem = fsbilly.NewOSFS("/")
	}

	return &Client{
		api:    api,
		bucket: bucket,
		opts:   o,
		fs:     filesystem,
	}
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Options returns the effective backend options.
func (c *Client) Options() Options {
	return c.opts
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, objerrors.NewBackendError("exists", key, err)
	}
	return true, nil
}

// Get returns the full body of key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, objerrors.NewBackendError("get", key, err)
	}
	return data, nil
}

// Put uploads the file at localPath under key, switching to a multipart
// upload at the configured threshold.
func (c *Client) Put(ctx context.Context, localPath, key string) error {
	info, err := c.fs.Stat(localPath)
	if err != nil {
		return objerrors.NewIOError("put", localPath, err).WithKey(key)
	}

	f, err := c.fs.Open(localPath)
	if err != nil {
		return objerrors.NewIOError("put", localPath, err).WithKey(key)
	}
	defer f.Close()

	contentType := detectContentType(f)
	size := info.Size()

	if size >= c.opts.MultipartThreshold {
		return c.putMultipart(ctx, f, size, key, contentType)
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          io.NewSectionReader(f, 0, size),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return objerrors.NewBackendError("put", key, err).WithPath(localPath)
	}
	return nil
}

// Delete removes key. S3 reports success for absent keys.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return objerrors.NewBackendError("delete", key, err)
	}
	return nil
}

// List returns one page of objects under prefix. The page token is the
// S3 continuation token.
func (c *Client) List(ctx context.Context, prefix string, pageSize int, pageToken string) (*storage.ListPage, error) {
	if pageSize <= 0 || pageSize > storage.DefaultPageSize {
		pageSize = storage.DefaultPageSize
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}

	out, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, objerrors.NewBackendError("list", prefix, err)
	}

	page := &storage.ListPage{
		Objects: make([]storage.ObjectInfo, 0, len(out.Contents)),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
			ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextPageToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// detectContentType sniffs the leading bytes of r.
func detectContentType(r io.ReaderAt) string {
	buf := make([]byte, sniffLen)
	n, _ := r.ReadAt(buf, 0)
	return mimetype.Detect(buf[:n]).String()
}
