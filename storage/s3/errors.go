package s3

import (
	"errors"

	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
)

// isNotFound reports whether err is an S3 missing-object response.
func isNotFound(err error) bool {
	var noSuchKey *awstypes.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *awstypes.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// mapError converts an SDK error for key into the package error taxonomy.
func mapError(op, key string, err error) error {
	if isNotFound(err) {
		return objerrors.NewNotFoundError(op, key)
	}
	return objerrors.NewBackendError(op, key, err)
}
