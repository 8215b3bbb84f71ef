package s3

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"
)

const (
	defaultMaxAttempts = 10
	defaultBaseDelay   = 100 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// Retryer is an aws.Retryer with exponential backoff and ±25% jitter.
// It is immutable after construction and safe for concurrent use.
type Retryer struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

var _ aws.Retryer = (*Retryer)(nil)

// NewRetryer returns a Retryer. Non-positive arguments take the defaults
// of 10 attempts, 100ms base delay and 30s maximum delay.
func NewRetryer(maxAttempts int, baseDelay, maxDelay time.Duration) *Retryer {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &Retryer{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// MaxAttempts returns the maximum number of attempts, including the first.
func (r *Retryer) MaxAttempts() int {
	return r.maxAttempts
}

// RetryDelay returns baseDelay * 2^(attempt-1) with jitter, capped at maxDelay.
func (r *Retryer) RetryDelay(attempt int, _ error) (time.Duration, error) {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseDelay
	if delay <= 0 || delay > r.maxDelay {
		delay = r.maxDelay
	}

	jitterRange := int64(float64(delay) * 0.25)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange)
	}

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}

// IsErrorRetryable reports whether err is transient.
func (r *Retryer) IsErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown",
			"Throttling",
			"ThrottlingException",
			"RequestLimitExceeded",
			"TooManyRequestsException",
			"RequestTimeout",
			"RequestTimeoutException",
			"InternalError",
			"ServiceUnavailable":
			return true
		case "AccessDenied",
			"NoSuchBucket",
			"NoSuchKey",
			"NotFound",
			"InvalidAccessKeyId",
			"SignatureDoesNotMatch":
			return false
		}
	}

	// Connection resets, 5xx responses and similar.
	return retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary
}

// GetRetryToken always grants a token; there is no client-side retry quota.
func (r *Retryer) GetRetryToken(context.Context, error) (func(error) error, error) {
	return noopRelease, nil
}

// GetInitialToken returns a no-op release function.
func (r *Retryer) GetInitialToken() func(error) error {
	return noopRelease
}

func noopRelease(error) error { return nil }
