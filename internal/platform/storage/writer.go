package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSWriter stores report exports in a Cloud Storage bucket.
type GCSWriter struct {
	client *gcs.Client
	bucket string
}

// NewGCSWriter constructs a writer for bucket.
func NewGCSWriter(client *gcs.Client, bucket string) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage writer: bucket is required")
	}
	return &GCSWriter{client: client, bucket: bucket}, nil
}

// WriteObject uploads data and returns its gs:// location.
func (w *GCSWriter) WriteObject(ctx context.Context, name, contentType string, data []byte) (string, error) {
	obj := w.client.Bucket(w.bucket).Object(name)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "private, max-age=0"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage writer: write %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage writer: finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", w.bucket, name), nil
}

// DirWriter stores report exports under a local directory for the memory backend.
type DirWriter struct {
	root string
}

// NewDirWriter constructs a writer rooted at dir.
func NewDirWriter(dir string) (*DirWriter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage writer: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage writer: resolve %s: %w", dir, err)
	}
	return &DirWriter{root: abs}, nil
}

// WriteObject writes data to root/name and returns a file:// location.
func (w *DirWriter) WriteObject(_ context.Context, name, _ string, data []byte) (string, error) {
	target := filepath.Join(w.root, filepath.FromSlash(name))
	if !strings.HasPrefix(target, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage writer: object %q escapes root", name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage writer: mkdir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("storage writer: write %s: %w", name, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}
