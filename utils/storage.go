package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GetGCSClient initializes a Google Cloud Storage client.
// Prefers ADC; set GCS_CREDENTIALS_JSON to provide explicit credentials (e.g. locally).
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSStore writes private objects into one bucket.
type GCSStore struct {
	Bucket string
}

func NewGCSStore(bucket string) *GCSStore {
	return &GCSStore{Bucket: bucket}
}

// Upload writes data to objectName and returns its gs:// URL.
func (s *GCSStore) Upload(ctx context.Context, objectName string, contentType string, data []byte) (string, error) {
	if s.Bucket == "" {
		return "", errors.New("storage bucket is not configured")
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(s.Bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.Bucket, objectName), nil
}

// Exists reports whether objectName is already in the bucket.
func (s *GCSStore) Exists(ctx context.Context, objectName string) (bool, error) {
	client, err := GetGCSClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	_, err = client.Bucket(s.Bucket).Object(objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}
