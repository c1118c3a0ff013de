package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/upload"
)

// S3Client is the subset of the S3 API the storage relies on.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 keeps files in an S3 bucket or any S3-compatible service.
type S3 struct {
	client  S3Client
	bucket  string
	prefix  string
	baseURL string
}

type S3Option func(*S3)

// WithS3Client replaces the client built out of the config, e.g. with a mock.
func WithS3Client(client S3Client) S3Option {
	return func(s *S3) {
		s.client = client
	}
}

func NewS3(ctx context.Context, cfg config.S3, opts ...S3Option) (*S3, error) {
	if len(cfg.Bucket) == 0 {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}

	s := &S3{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}

		s.client = client
	}

	switch {
	case len(cfg.PublicURL) > 0:
		s.baseURL = cfg.PublicURL
	case len(cfg.Endpoint) > 0:
		s.baseURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		s.baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	s.baseURL = withSlash(s.baseURL)

	return s, nil
}

func newS3Client(ctx context.Context, cfg config.S3) (*s3.Client, error) {
	var options []func(*awsconfig.LoadOptions) error
	if len(cfg.Region) > 0 {
		options = append(options, awsconfig.WithRegion(cfg.Region))
	}

	if len(cfg.AccessKeyID) > 0 && len(cfg.SecretAccessKey) > 0 {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if len(cfg.Endpoint) > 0 {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Save uploads the artifact and removes its temporary file afterwards.
func (s *S3) Save(ctx context.Context, artifact *upload.Artifact, key string) (*Object, error) {
	key, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	checksum, err := artifact.Checksum()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	src, err := artifact.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	defer func() { _ = src.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          src,
		ContentLength: aws.Int64(artifact.Size),
		ContentType:   aws.String(artifact.ContentType),
		Metadata: map[string]string{
			"filename": artifact.SafeFilename(),
			"blake3":   checksum,
		},
	})
	if err != nil {
		return nil, classifyS3Error(err, "upload")
	}

	_ = src.Close()
	_ = artifact.Remove()

	return &Object{
		Key:         key,
		URL:         s.baseURL + key,
		Size:        artifact.Size,
		ContentType: artifact.ContentType,
		Checksum:    checksum,
	}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	key, err := s.objectKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error(err, "check")
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	return classifyS3Error(err, "delete")
}

// URL returns the public URL of an object. The key is expected to be the one
// returned in Object.Key.
func (s *S3) URL(key string) string {
	return s.baseURL + strings.TrimPrefix(key, "/")
}

func (s *S3) objectKey(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	if len(s.prefix) > 0 && !strings.HasPrefix(key, s.prefix+"/") {
		key = s.prefix + "/" + key
	}

	return key, nil
}

func classifyS3Error(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)

	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	case errors.As(err, &noSuchBucket):
		return ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %s", ErrAccessDenied, operation)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, operation)
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "InternalError":
			return fmt.Errorf("%w: %s", ErrUnavailable, operation)
		}
	}

	return fmt.Errorf("%w: %s: %v", ErrOperationFailed, operation, err)
}
