package testutil

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 ETag semantics
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client implements the S3 API used by the s3 backend.
// Each operation delegates to its function field when set and otherwise
// returns an empty output.
type MockS3Client struct {
	PutObjectFunc               func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObjectFunc               func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObjectFunc              func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjectFunc            func(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2Func           func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUploadFunc   func(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartFunc              func(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUploadFunc func(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUploadFunc    func(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

func (m *MockS3Client) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, params, optFns...)
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *MockS3Client) GetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	if m.GetObjectFunc != nil {
		return m.GetObjectFunc(ctx, params, optFns...)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (m *MockS3Client) HeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, params, optFns...)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *MockS3Client) DeleteObject(
	ctx context.Context,
	params *s3.DeleteObjectInput,
	optFns ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, params, optFns...)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *MockS3Client) ListObjectsV2(
	ctx context.Context,
	params *s3.ListObjectsV2Input,
	optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(ctx, params, optFns...)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *MockS3Client) CreateMultipartUpload(
	ctx context.Context,
	params *s3.CreateMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	if m.CreateMultipartUploadFunc != nil {
		return m.CreateMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (m *MockS3Client) UploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	if m.UploadPartFunc != nil {
		return m.UploadPartFunc(ctx, params, optFns...)
	}
	return &s3.UploadPartOutput{}, nil
}

func (m *MockS3Client) CompleteMultipartUpload(
	ctx context.Context,
	params *s3.CompleteMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *MockS3Client) AbortMultipartUpload(
	ctx context.Context,
	params *s3.AbortMultipartUploadInput,
	optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, params, optFns...)
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

// S3Object is an object held by a FakeBucket.
type S3Object struct {
	Data        []byte
	ETag        string
	ContentType string
}

type pendingUpload struct {
	key   string
	parts map[int32][]byte
}

// FakeBucket is an in-memory bucket that wires a MockS3Client with
// S3-like semantics: quoted MD5 ETags, multipart ETags with a part-count
// suffix, NoSuchKey/NotFound errors and continuation-token paging.
type FakeBucket struct {
	mu      sync.Mutex
	objects map[string]S3Object
	uploads map[string]*pendingUpload
	nextID  int
	aborted int
}

// NewFakeBucket returns an empty bucket and a mock client bound to it.
func NewFakeBucket() (*FakeBucket, *MockS3Client) {
	b := &FakeBucket{
		objects: make(map[string]S3Object),
		uploads: make(map[string]*pendingUpload),
	}
	return b, b.client()
}

// Object returns the stored object for key.
func (b *FakeBucket) Object(key string) (S3Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Seed stores data under key as a single-part object.
func (b *FakeBucket) Seed(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = S3Object{Data: data, ETag: fmt.Sprintf("%q", MD5Hex(string(data)))}
}

// Aborted returns how many multipart uploads were aborted.
func (b *FakeBucket) Aborted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// PendingUploads returns how many multipart uploads are still open.
func (b *FakeBucket) PendingUploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads)
}

func (b *FakeBucket) client() *MockS3Client {
	return &MockS3Client{
		PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			data, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}
			etag := fmt.Sprintf("%q", MD5Hex(string(data)))

			b.mu.Lock()
			b.objects[aws.ToString(in.Key)] = S3Object{
				Data:        data,
				ETag:        etag,
				ContentType: aws.ToString(in.ContentType),
			}
			b.mu.Unlock()
			return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
		},
		GetObjectFunc: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			obj, ok := b.Object(aws.ToString(in.Key))
			if !ok {
				return nil, &awstypes.NoSuchKey{Message: aws.String("The specified key does not exist.")}
			}
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(bytes.NewReader(obj.Data)),
				ContentLength: aws.Int64(int64(len(obj.Data))),
				ETag:          aws.String(obj.ETag),
			}, nil
		},
		HeadObjectFunc: func(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			obj, ok := b.Object(aws.ToString(in.Key))
			if !ok {
				return nil, &awstypes.NotFound{Message: aws.String("Not Found")}
			}
			return &s3.HeadObjectOutput{
				ContentLength: aws.Int64(int64(len(obj.Data))),
				ETag:          aws.String(obj.ETag),
			}, nil
		},
		DeleteObjectFunc: func(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
			b.mu.Lock()
			delete(b.objects, aws.ToString(in.Key))
			b.mu.Unlock()
			return &s3.DeleteObjectOutput{}, nil
		},
		ListObjectsV2Func: b.list,
		CreateMultipartUploadFunc: func(
			_ context.Context,
			in *s3.CreateMultipartUploadInput,
			_ ...func(*s3.Options),
		) (*s3.CreateMultipartUploadOutput, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.nextID++
			id := fmt.Sprintf("upload-%d", b.nextID)
			b.uploads[id] = &pendingUpload{key: aws.ToString(in.Key), parts: make(map[int32][]byte)}
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
		},
		UploadPartFunc: func(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			data, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}

			b.mu.Lock()
			defer b.mu.Unlock()
			up, ok := b.uploads[aws.ToString(in.UploadId)]
			if !ok {
				return nil, &awstypes.NoSuchUpload{Message: aws.String("no such upload")}
			}
			up.parts[aws.ToInt32(in.PartNumber)] = data
			return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("%q", MD5Hex(string(data))))}, nil
		},
		CompleteMultipartUploadFunc: func(
			_ context.Context,
			in *s3.CompleteMultipartUploadInput,
			_ ...func(*s3.Options),
		) (*s3.CompleteMultipartUploadOutput, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			id := aws.ToString(in.UploadId)
			up, ok := b.uploads[id]
			if !ok {
				return nil, &awstypes.NoSuchUpload{Message: aws.String("no such upload")}
			}

			var (
				body    []byte
				digests []byte
			)
			for _, p := range in.MultipartUpload.Parts {
				data, ok := up.parts[aws.ToInt32(p.PartNumber)]
				if !ok {
					return nil, fmt.Errorf("part %d was not uploaded", aws.ToInt32(p.PartNumber))
				}
				sum := md5.Sum(data)
				digests = append(digests, sum[:]...)
				body = append(body, data...)
			}
			total := md5.Sum(digests)
			etag := fmt.Sprintf("%q", fmt.Sprintf("%s-%d", hex.EncodeToString(total[:]), len(in.MultipartUpload.Parts)))

			b.objects[up.key] = S3Object{Data: body, ETag: etag}
			delete(b.uploads, id)
			return &s3.CompleteMultipartUploadOutput{ETag: aws.String(etag)}, nil
		},
		AbortMultipartUploadFunc: func(
			_ context.Context,
			in *s3.AbortMultipartUploadInput,
			_ ...func(*s3.Options),
		) (*s3.AbortMultipartUploadOutput, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.uploads, aws.ToString(in.UploadId))
			b.aborted++
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}
}

// list pages in key order; the continuation token is the last key returned.
func (b *FakeBucket) list(
	_ context.Context,
	in *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	after := aws.ToString(in.ContinuationToken)
	maxKeys := int(aws.ToInt32(in.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	b.mu.Lock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for i, k := range keys {
		if i == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keys[i-1])
			break
		}
		obj := b.objects[k]
		out.Contents = append(out.Contents, awstypes.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(obj.Data))),
			ETag: aws.String(obj.ETag),
		})
	}
	b.mu.Unlock()

	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}
