// Package storage defines the remote destinations artifacts can be mirrored to.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Uploader copies a downloaded artifact to a remote key.
type Uploader interface {
	PutFile(ctx context.Context, key, path string) error

	// Location renders key the way users pass destinations on the command
	// line, e.g. "s3://bucket/builds/app.ipa".
	Location(key string) string
}

// Mirror failures the CLI reports distinctly. Backends map their own error
// codes onto these.
var (
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// StorageError records which mirror step failed and for which object.
type StorageError struct {
	Op       string // backend call, e.g. "PutObject"
	Provider string // URI scheme of the destination, e.g. "s3"
	Bucket   string
	Key      string
	Err      error
}

func (e *StorageError) Error() string {
	target := e.Provider
	if e.Bucket != "" {
		target = e.Provider + "://" + e.Bucket + "/" + e.Key
	}
	return fmt.Sprintf("mirror %s %s: %v", e.Op, target, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsAccessDenied reports whether the destination refused the upload.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }

// IsBucketNotFound reports whether the destination bucket is missing.
func IsBucketNotFound(err error) bool { return errors.Is(err, ErrBucketNotFound) }

// IsInvalidCredentials reports whether the configured keys or profile were rejected.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsProviderUnavailable reports a server-side outage of the destination.
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }

// IsThrottled reports whether the destination rate limited the upload.
func IsThrottled(err error) bool { return errors.Is(err, ErrThrottled) }

// Retryable reports whether rerunning the mirror later may succeed.
// Permission, credential and missing-bucket failures need a config change.
func Retryable(err error) bool {
	return IsThrottled(err) || IsProviderUnavailable(err)
}
