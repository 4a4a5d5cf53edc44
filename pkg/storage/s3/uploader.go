package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/expobuild/pkg/storage"
)

const providerName = "s3"

// putObjectAPI is the subset of the S3 client used here.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader implements storage.Uploader for S3.
type Uploader struct {
	client putObjectAPI
	bucket string
	prefix string
}

var _ storage.Uploader = (*Uploader)(nil)

// New creates an uploader using the AWS SDK v2 default credential chain
// unless explicit credentials are configured.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &storage.StorageError{Op: "New", Provider: providerName, Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return newWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client putObjectAPI, bucket, prefix string) *Uploader {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Uploader{client: client, bucket: bucket, prefix: strings.TrimPrefix(prefix, "/")}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// resolveRegion defaults the region to us-east-1 for AWS S3 only. S3-compatible
// endpoints get no default.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

// Key returns the object key for a file name under the configured prefix.
func (u *Uploader) Key(name string) string {
	return u.prefix + path.Base(name)
}

// Location renders key as an s3:// URI.
func (u *Uploader) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", u.bucket, key)
}

// PutFile uploads the file at localPath to key. The file is seekable, so the
// SDK can retry the request body.
func (u *Uploader) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	size := info.Size()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return u.wrapError("PutObject", key, err)
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".apk":
		return "application/vnd.android.package-archive"
	default:
		return "application/octet-stream"
	}
}

// wrapError converts S3 errors to storage errors with appropriate sentinels.
func (u *Uploader) wrapError(op, key string, err error) error {
	wrapped := &storage.StorageError{
		Op:       op,
		Provider: providerName,
		Bucket:   u.bucket,
		Key:      key,
		Err:      err,
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		wrapped.Err = storage.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Err = storage.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = storage.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = storage.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = storage.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = storage.ErrProviderUnavailable
		}
	}
	return wrapped
}
