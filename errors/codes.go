// Package errors provides the error taxonomy for sync operations.
// It pairs a structured Error type carrying operation context with sentinel
// errors and string codes used when failures are reported in a SyncResult.
package errors

// Code identifies a class of sync failure.
// Codes are string-based so they read well in logs and serialized results.
type Code string

const (
	// CodeIO indicates a local file could not be read or written.
	CodeIO Code = "IO_ERROR"

	// CodeNotFound indicates a remote object does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeParse indicates corrupt manifest, version, or cache content.
	CodeParse Code = "PARSE_ERROR"

	// CodeBackend indicates a storage API failure (network, auth, rate limit).
	CodeBackend Code = "BACKEND_ERROR"

	// CodeRemoteMismatch indicates remote objects disagree with the manifest.
	CodeRemoteMismatch Code = "REMOTE_MISMATCH"

	// CodeUnknown indicates an unclassified failure.
	CodeUnknown Code = "UNKNOWN"
)

// CodeOf classifies err by walking its chain for a known sentinel.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return CodeNotFound
	case IsIO(err):
		return CodeIO
	case IsParse(err):
		return CodeParse
	case IsRemoteMismatch(err):
		return CodeRemoteMismatch
	case IsBackend(err):
		return CodeBackend
	default:
		return CodeUnknown
	}
}
