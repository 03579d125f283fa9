// Package s3 implements the S3-compatible export archival backend. It
// supports AWS S3, MinIO, and other S3-compatible services via a configurable
// endpoint. Authentication uses the default AWS credential chain unless
// static keys are configured.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/storage"
)

func init() {
	storage.Register("s3", func(cfg *appconfig.ExportArchiveConfig) (storage.Backend, error) {
		return New(&cfg.S3)
	})
}

// S3Backend stores export documents as objects in a bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an S3-compatible archival backend.
func New(cfg *appconfig.S3ExportArchiveConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Path-style addressing is required by MinIO and most self-hosted
		// S3-compatible services.
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads the document to the bucket.
func (b *S3Backend) Put(ctx context.Context, name string, data []byte, contentType string) (*storage.PutResult, error) {
	key := name
	if b.prefix != "" {
		key = path.Join(b.prefix, name)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading export to s3: %w", err)
	}

	sum := sha256.Sum256(data)
	return &storage.PutResult{
		Location: fmt.Sprintf("s3://%s/%s", b.bucket, key),
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
