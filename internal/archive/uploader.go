package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-multierror"
)

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error
}

// GCSUploader writes objects to a Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader wraps an existing storage client.
func NewGCSUploader(client *storage.Client, bucket string) *GCSUploader {
	return &GCSUploader{client: client, bucket: bucket}
}

func (u *GCSUploader) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", u.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", u.bucket, objectName, err)
	}
	return nil
}

// LocalUploader writes objects below a directory on the local filesystem.
type LocalUploader struct {
	dir string
}

func NewLocalUploader(dir string) *LocalUploader {
	return &LocalUploader{dir: dir}
}

func (u *LocalUploader) Upload(_ context.Context, objectName string, data io.Reader, _ string) error {
	target := filepath.Join(u.dir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// MultiUploader sends every object to all uploaders and reports every failure.
type MultiUploader []Uploader

func (m MultiUploader) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	var result error
	for _, u := range m {
		if err := u.Upload(ctx, objectName, bytes.NewReader(b), contentType); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
