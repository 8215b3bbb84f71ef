package errors

import (
	"errors"
	"fmt"
)

// Error represents a sync operation error with context about what failed.
// It wraps the underlying error so errors.Is and errors.As see through it.
type Error struct {
	// Op is the operation that failed (e.g., "hash", "put", "fetch-version")
	Op string

	// Key is the remote object key (if applicable)
	Key string

	// Path is the local file path (if applicable)
	Path string

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Key != "" && e.Path != "":
		return fmt.Sprintf("objsync.%s %s -> %s: %v", e.Op, e.Path, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("objsync.%s key %s: %v", e.Op, e.Key, e.Err)
	case e.Path != "":
		return fmt.Sprintf("objsync.%s path %s: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("objsync.%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithKey adds remote key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithPath adds local path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewIOError wraps a local filesystem failure on path as ErrIO.
func NewIOError(op, path string, err error) *Error {
	return &Error{
		Op:   op,
		Path: path,
		Err:  join(ErrIO, err),
	}
}

// NewBackendError wraps a storage failure on key as ErrBackend.
// Not-found failures keep their ErrNotFound identity.
func NewBackendError(op, key string, err error) *Error {
	if errors.Is(err, ErrNotFound) {
		return &Error{Op: op, Key: key, Err: err}
	}
	return &Error{
		Op:  op,
		Key: key,
		Err: join(ErrBackend, err),
	}
}

// NewNotFoundError reports that key does not exist remotely.
func NewNotFoundError(op, key string) *Error {
	return &Error{
		Op:  op,
		Key: key,
		Err: ErrNotFound,
	}
}

// NewParseError wraps corrupt content found at path or key as ErrParse.
func NewParseError(op, where string, err error) *Error {
	return &Error{
		Op:   op,
		Path: where,
		Err:  join(ErrParse, err),
	}
}

func join(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Sentinel errors for sync failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrIO indicates a local file is unreadable or unwritable
	ErrIO = errors.New("objsync: local i/o error")

	// ErrNotFound indicates that a remote object does not exist
	ErrNotFound = errors.New("objsync: object not found")

	// ErrParse indicates corrupt manifest, version, or cache content
	ErrParse = errors.New("objsync: parse error")

	// ErrBackend indicates a storage API failure
	ErrBackend = errors.New("objsync: backend error")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("objsync: invalid input")

	// ErrLocked indicates another process holds the sync lock
	ErrLocked = errors.New("objsync: sync already in progress")

	// ErrRemoteMismatch indicates remote objects disagree with the manifest
	ErrRemoteMismatch = errors.New("objsync: remote does not match manifest")
)

// IsNotFound checks if an error indicates that a remote object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIO checks if an error is a local i/o failure.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsParse checks if an error indicates corrupt content.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsBackend checks if an error came from the storage API.
func IsBackend(err error) bool {
	return errors.Is(err, ErrBackend)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsLocked checks if an error indicates the sync lock is held elsewhere.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsRemoteMismatch checks if an error indicates remote/manifest disagreement.
func IsRemoteMismatch(err error) bool {
	return errors.Is(err, ErrRemoteMismatch)
}
