package s3

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

const (
	// DefaultMultipartThreshold is the object size at which Put switches
	// to a multipart upload.
	DefaultMultipartThreshold int64 = 100 * 1024 * 1024

	// DefaultPartSize is the multipart part size.
	DefaultPartSize int64 = 8 * 1024 * 1024

	// MinPartSize is the smallest part S3 accepts (except the last one).
	MinPartSize int64 = 5 * 1024 * 1024

	// DefaultConcurrency is the number of parts uploaded at once.
	DefaultConcurrency = 5
)

// Options holds backend configuration.
type Options struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Timeout         time.Duration

	// MultipartThreshold is the size at or above which Put uses multipart.
	MultipartThreshold int64
	PartSize           int64
	Concurrency        int

	// Retryer overrides the default jittered retryer.
	Retryer aws.Retryer

	// AWSConfig replaces the default credential chain lookup.
	AWSConfig *aws.Config

	// Filesystem is where Put reads local files from. Default is the OS root.
	Filesystem fs.Filesystem
}

// Option configures the backend.
type Option func(*Options)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(o *Options) {
		o.Region = region
	}
}

// WithEndpoint sets a custom endpoint URL, for S3-compatible services.
func WithEndpoint(endpoint string) Option {
	return func(o *Options) {
		o.Endpoint = endpoint
	}
}

// WithPathStyle forces path-style addressing.
func WithPathStyle(enabled bool) Option {
	return func(o *Options) {
		o.ForcePathStyle = enabled
	}
}

// WithCredentials sets static credentials instead of the default chain.
func WithCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(o *Options) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
		o.SessionToken = sessionToken
	}
}

// WithTimeout sets the HTTP client timeout for each request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithMultipartThreshold sets the size at which uploads switch to multipart.
func WithMultipartThreshold(size int64) Option {
	return func(o *Options) {
		o.MultipartThreshold = size
	}
}

// WithPartSize sets the multipart part size. Values below MinPartSize are raised.
func WithPartSize(size int64) Option {
	return func(o *Options) {
		o.PartSize = size
	}
}

// WithConcurrency sets how many parts upload at once.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithRetryer replaces the default retryer.
func WithRetryer(r aws.Retryer) Option {
	return func(o *Options) {
		o.Retryer = r
	}
}

// WithAWSConfig uses cfg instead of loading the default configuration.
func WithAWSConfig(cfg *aws.Config) Option {
	return func(o *Options) {
		o.AWSConfig = cfg
	}
}

// WithFilesystem sets the filesystem local files are read from.
func WithFilesystem(filesystem fs.Filesystem) Option {
	return func(o *Options) {
		o.Filesystem = filesystem
	}
}

func (o *Options) applyDefaults() {
	if o.MultipartThreshold <= 0 {
		o.MultipartThreshold = DefaultMultipartThreshold
	}
	if o.PartSize <= 0 {
		o.PartSize = DefaultPartSize
	}
	if o.PartSize < MinPartSize {
		o.PartSize = MinPartSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}
