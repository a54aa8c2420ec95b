package ledger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver uploads sealed ledger segments to durable object storage so local
// rotation never destroys auditable history.
type Archiver interface {
	Archive(ctx context.Context, segmentPath string) error
}

// S3Archiver uploads segments under s3://bucket/prefix/.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver parses an s3://bucket/prefix URI and builds the client from
// the ambient AWS config.
func NewS3Archiver(ctx context.Context, uri string) (*S3Archiver, error) {
	trimmed, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return nil, fmt.Errorf("archiver: %q is not an s3:// uri", uri)
	}
	bucket, prefix, _ := strings.Cut(trimmed, "/")
	if bucket == "" {
		return nil, fmt.Errorf("archiver: empty bucket in %q", uri)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archiver: aws config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, segmentPath string) error {
	f, err := os.Open(segmentPath)
	if err != nil {
		return fmt.Errorf("archiver: open segment: %w", err)
	}
	defer f.Close()

	key := filepath.Base(segmentPath)
	if a.prefix != "" {
		key = strings.TrimSuffix(a.prefix, "/") + "/" + key
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("archiver: put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// GCSArchiver uploads segments to a Cloud Storage bucket.
type GCSArchiver struct {
	client *gcs.Client
	bucket string
}

// NewGCSArchiver builds a client with ambient credentials.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archiver: gcs client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

func (a *GCSArchiver) Archive(ctx context.Context, segmentPath string) error {
	f, err := os.Open(segmentPath)
	if err != nil {
		return fmt.Errorf("archiver: open segment: %w", err)
	}
	defer f.Close()

	w := a.client.Bucket(a.bucket).Object(filepath.Base(segmentPath)).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("archiver: write gs://%s/%s: %w", a.bucket, filepath.Base(segmentPath), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archiver: finalize gs://%s: %w", a.bucket, err)
	}
	return nil
}
