package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/3leaps/expobuild/pkg/manifest"
)

// Destination parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// ObjectURI represents a parsed cloud storage location.
//
// Example URIs:
//   - s3://bucket
//   - s3://bucket/releases/
type ObjectURI struct {
	// Provider is the storage provider (e.g., "s3").
	Provider string

	// Bucket is the bucket name.
	Bucket string

	// Prefix is the key prefix. May be empty for bucket root.
	Prefix string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Prefix)
}

// Destination is where download:artifact places artifacts: a local
// directory or a bucket prefix.
type Destination struct {
	Dir    string
	Remote *ObjectURI
}

// IsRemote reports whether artifacts are mirrored to object storage.
func (d Destination) IsRemote() bool { return d.Remote != nil }

// ParseDestination interprets a --to-dir value. Values with a scheme are
// parsed as storage URIs; anything else is a local directory with "~"
// expanded.
func ParseDestination(value string) (Destination, error) {
	if !strings.Contains(value, "://") {
		return Destination{Dir: manifest.ExpandHome(value)}, nil
	}
	uri, err := ParseURI(value)
	if err != nil {
		return Destination{}, err
	}
	return Destination{Remote: uri}, nil
}

// ParseURI parses a cloud storage URI into its components.
//
// Supported formats:
//   - s3://bucket
//   - s3://bucket/
//   - s3://bucket/prefix
//   - s3://bucket/prefix/
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://...)", ErrInvalidURI)
	}

	provider := strings.ToLower(uri[:schemeEnd])
	if provider != "s3" {
		return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, provider)
	}

	remainder := uri[schemeEnd+3:]
	bucket, prefix, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}

	// S3 bucket names can't contain most special chars
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil || strings.ContainsAny(bucket, "?#*") {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &ObjectURI{
		Provider: provider,
		Bucket:   bucket,
		Prefix:   prefix,
	}, nil
}
