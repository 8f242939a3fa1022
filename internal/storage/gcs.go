package storage

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSMirror uploads report segments to a Google Cloud Storage bucket.
// Authentication comes from Application Default Credentials.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewGCSMirror builds the mirror and verifies bucket access up front, so a
// misconfigured bucket aborts startup instead of surfacing mid-run.
func NewGCSMirror(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCSMirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close storage client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("bucket %q attributes: %w", bucket, err)
	}
	return &GCSMirror{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Upload writes one segment under the configured prefix.
func (g *GCSMirror) Upload(ctx context.Context, name string, data []byte) error {
	object := name
	if g.prefix != "" {
		object = path.Join(g.prefix, name)
	}
	wc := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = "text/csv; charset=utf-8"
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("close object writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write object %s: %w", object, err)
	}
	// Close finalizes the upload; the object does not exist until it returns.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", object, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSMirror) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
