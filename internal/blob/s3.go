package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 stores objects in an S3-compatible bucket (AWS S3 or MinIO). Object keys
// are "<prefix><digest>".
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds explicit construction parameters; production deployments
// normally configure through the environment instead.
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string // optional; enables custom endpoint (e.g. MinIO)
	PathStyle bool
}

// NewS3 creates an S3 blob store from config. Credentials come from the
// default AWS chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// OpenS3FromEnv constructs an S3 store from process environment:
//
//	ARENA_BLOB_S3_BUCKET=<bucket> (required)
//	ARENA_BLOB_S3_PREFIX=<key prefix> (optional)
//	ARENA_BLOB_S3_REGION=<region> (default us-east-1)
//	ARENA_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	ARENA_BLOB_S3_PATH_STYLE=true|false (default false)
func OpenS3FromEnv(ctx context.Context) (*S3, error) {
	bucket := os.Getenv("ARENA_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("blob: ARENA_BLOB_S3_BUCKET required for s3 driver")
	}
	return NewS3(ctx, S3Config{
		Bucket:    bucket,
		Prefix:    os.Getenv("ARENA_BLOB_S3_PREFIX"),
		Region:    os.Getenv("ARENA_BLOB_S3_REGION"),
		Endpoint:  os.Getenv("ARENA_BLOB_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("ARENA_BLOB_S3_PATH_STYLE"), "true"),
	})
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) key(digest string) string { return s.prefix + digest }

func (s *S3) Put(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)
	key := s.key(digest)
	// Content addressing makes overwrites harmless, so no existence check.
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("blob: s3 put: %w", err)
	}
	return digest, nil
}

func (s *S3) Get(ctx context.Context, digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, ErrBadDigest
	}
	key := s.key(digest)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: s3 get: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: s3 read: %w", err)
	}
	return data, nil
}

func (s *S3) Exists(ctx context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, ErrBadDigest
	}
	key := s.key(digest)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
