package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
)

// partCount returns the number of parts needed for size bytes.
func partCount(size, partSize int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + partSize - 1) / partSize)
}

// partRange returns the offset and length of the 1-based part n.
func partRange(n int, size, partSize int64) (int64, int64) {
	offset := int64(n-1) * partSize
	length := partSize
	if offset+length > size {
		length = size - offset
	}
	return offset, length
}

// putMultipart uploads r in parts read directly from their file offsets.
// Any failure aborts the upload so no parts are left behind.
func (c *Client) putMultipart(ctx context.Context, r io.ReaderAt, size int64, key, contentType string) error {
	created, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return objerrors.NewBackendError("create-multipart", key, err)
	}
	uploadID := aws.ToString(created.UploadId)

	parts, err := c.uploadParts(ctx, r, size, key, uploadID)
	if err != nil {
		c.abort(key, uploadID)
		return err
	}

	_, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		c.abort(key, uploadID)
		return objerrors.NewBackendError("complete-multipart", key, err)
	}
	return nil
}

func (c *Client) uploadParts(
	ctx context.Context,
	r io.ReaderAt,
	size int64,
	key, uploadID string,
) ([]awstypes.CompletedPart, error) {
	numParts := partCount(size, c.opts.PartSize)
	parts := make([]awstypes.CompletedPart, numParts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i := 1; i <= numParts; i++ {
		n := i
		g.Go(func() error {
			offset, length := partRange(n, size, c.opts.PartSize)
			out, err := c.api.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:        aws.String(c.bucket),
				Key:           aws.String(key),
				UploadId:      aws.String(uploadID),
				PartNumber:    aws.Int32(int32(n)),
				Body:          io.NewSectionReader(r, offset, length),
				ContentLength: aws.Int64(length),
			})
			if err != nil {
				return objerrors.NewBackendError("upload-part", key, err)
			}
			parts[n-1] = awstypes.CompletedPart{
				ETag:       out.ETag,
				PartNumber: aws.Int32(int32(n)),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// abort runs on a fresh context so cleanup still happens after cancellation.
func (c *Client) abort(key, uploadID string) {
	_, _ = c.api.AbortMultipartUpload(context.Background(), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}
