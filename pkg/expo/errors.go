package expo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for build status operations.
var (
	// ErrNoJobs indicates the status response contained no jobs to act on.
	ErrNoJobs = errors.New("no jobs found for this project")

	// ErrUnknownStatus indicates a job reported a status the poll engine does not understand.
	ErrUnknownStatus = errors.New("unknown job status")

	// ErrTimeout indicates the wait deadline passed before the build finished.
	ErrTimeout = errors.New("timed out waiting for build")

	// ErrMissingArtifact indicates a job has no artifact URL where one is required.
	ErrMissingArtifact = errors.New("job has no artifact")

	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("build service unreachable")
)

// neverPublishedMessage is the server message returned when a project has
// never been published. The text is owned upstream and may change; it is
// matched in exactly one place, IsNeverPublished.
const neverPublishedMessage = "This experience is missing a name and cannot be published."

// APIError is an application or HTTP error reported by the build service.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Message is the server-provided error message, if any.
	Message string

	// Body is the raw response body, truncated.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("build service error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("build service error (HTTP %d)", e.StatusCode)
}

// IsNeverPublished reports whether err is the server's "never published"
// response. Callers treat it as "no builds in progress" rather than a failure.
//
// This matches on message text, which is fragile: update
// neverPublishedMessage if the service rewords it.
func IsNeverPublished(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Message == neverPublishedMessage
}

// IsTransient reports whether err is a network failure or a server-side
// HTTP error that may succeed on a later attempt.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsNoJobs returns true if the error indicates an empty job list.
func IsNoJobs(err error) bool {
	return errors.Is(err, ErrNoJobs)
}

// IsMissingArtifact returns true if the error indicates a missing artifact URL.
func IsMissingArtifact(err error) bool {
	return errors.Is(err, ErrMissingArtifact)
}

// Error codes returned by Classify.
const (
	CodeNoJobs          = "NO_JOBS"
	CodeUnknownStatus   = "UNKNOWN_STATUS"
	CodeTimeout         = "TIMEOUT"
	CodeMissingArtifact = "MISSING_ARTIFACT"
	CodeTransient       = "TRANSIENT"
	CodeRemote          = "REMOTE"
	CodeCanceled        = "CANCELED"
	CodeInternal        = "INTERNAL"
)

// Classify maps an error onto a stable, machine-readable code.
func Classify(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrNoJobs):
		return CodeNoJobs
	case errors.Is(err, ErrUnknownStatus):
		return CodeUnknownStatus
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrMissingArtifact):
		return CodeMissingArtifact
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case IsTransient(err):
		return CodeTransient
	case errors.As(err, &apiErr):
		return CodeRemote
	default:
		return CodeInternal
	}
}
