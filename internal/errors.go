package internal

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every resolution source.
var (
	// ErrNotFound means a source had nothing to say about a file.
	ErrNotFound = errors.New("timestamp not found")
	// ErrToolInvocation means the metadata extraction tool failed or timed out.
	ErrToolInvocation = errors.New("metadata tool invocation failed")
	// ErrDataCorruption means a matched sidecar exists but cannot be read.
	ErrDataCorruption = errors.New("sidecar data corruption")
	// ErrCollision means two files would be written to the same path.
	ErrCollision = errors.New("target path collision")
	// ErrSidecarClaimed means a sidecar already documents another media file.
	// The later file falls through to embedded metadata.
	ErrSidecarClaimed = errors.New("sidecar already claimed")
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryNotFound   ErrorCategory = "not_found"       // Source could not resolve the file
	ErrorCategoryTool       ErrorCategory = "tool_invocation" // exiftool failed, timed out or returned garbage
	ErrorCategoryCorruption ErrorCategory = "data_corruption" // Sidecar present but unreadable
	ErrorCategoryCollision  ErrorCategory = "collision"       // Two files on one target
	ErrorCategoryClaimed    ErrorCategory = "sidecar_claimed" // Sidecar already documents another media file
	ErrorCategoryUnknown    ErrorCategory = "unknown_error"   // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // Halts the run
	ErrorSeverityWarning  ErrorSeverity = "warning"  // File falls through to the next source
)

// ResolveError ties a failure to the file and source that produced it.
type ResolveError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity(), e.Category(), e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Category classifies the wrapped error.
func (e *ResolveError) Category() ErrorCategory {
	return CategoryOf(e.Err)
}

// Severity is critical for anything that must stop the run.
func (e *ResolveError) Severity() ErrorSeverity {
	if IsFatal(e.Err) {
		return ErrorSeverityCritical
	}
	return ErrorSeverityWarning
}

// CategoryOf maps an error chain onto an ErrorCategory.
func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataCorruption):
		return ErrorCategoryCorruption
	case errors.Is(err, ErrCollision):
		return ErrorCategoryCollision
	case errors.Is(err, ErrSidecarClaimed):
		return ErrorCategoryClaimed
	case errors.Is(err, ErrToolInvocation):
		return ErrorCategoryTool
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	default:
		return ErrorCategoryUnknown
	}
}

// IsFatal reports whether err must halt a run instead of being recorded
// against a single file. Unknown errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch CategoryOf(err) {
	case ErrorCategoryNotFound, ErrorCategoryTool, ErrorCategoryClaimed:
		return false
	}
	return true
}
