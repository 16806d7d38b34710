package updater

import (
	"errors"
	"fmt"
)

// RemoteDescriptorError is returned when the remote origin responded but the
// release descriptor is missing required fields. Surfaced through Update;
// no partial state is applied.
type RemoteDescriptorError struct {
	Missing string
}

func (e *RemoteDescriptorError) Error() string {
	return fmt.Sprintf("updater: remote descriptor missing %s", e.Missing)
}

// DescriptorParseError is returned when the mirror list cannot be extracted
// from the descriptor body (the embedded metadata comment is absent or
// malformed).
type DescriptorParseError struct {
	Reason string
}

func (e *DescriptorParseError) Error() string {
	return fmt.Sprintf("updater: parse descriptor: %s", e.Reason)
}

// MirrorFetchError is one mirror's failure: a transport error, a bad status,
// or a payload whose embedded identity does not match the descriptor's
// target (a stale CDN cache serving old content under a fresh URL).
// Individual mirror failures are recorded, not surfaced; only the aggregate
// DownloadError reaches the caller.
type MirrorFetchError struct {
	URL      string
	Status   int
	Mismatch bool
	Got      string // embedded identity, when Mismatch
	Cause    error
}

func (e *MirrorFetchError) Error() string {
	switch {
	case e.Mismatch:
		return fmt.Sprintf("updater: mirror %s served stale content (identity %s)", e.URL, e.Got)
	case e.Status != 0:
		return fmt.Sprintf("updater: mirror %s returned status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("updater: mirror %s: %v", e.URL, e.Cause)
	}
}

func (e *MirrorFetchError) Unwrap() error { return e.Cause }

// DownloadError is returned when every mirror failed. Errors aggregates the
// per-mirror failures in the order the mirrors were tried.
type DownloadError struct {
	Errors []error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("updater: all %d mirrors failed: %v",
		len(e.Errors), errors.Join(e.Errors...))
}

// Unwrap exposes the per-mirror errors to errors.Is/As.
func (e *DownloadError) Unwrap() []error { return e.Errors }
