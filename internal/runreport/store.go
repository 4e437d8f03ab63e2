package runreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/budget-sync/internal/logger"
)

// Store archives reports.
type Store interface {
	// Save writes the report and returns where it was stored.
	Save(ctx context.Context, report *Report) (string, error)
}

// ObjectStorage reads and writes whole objects in a bucket.
// This interface enables mocking of Cloud Storage in tests.
type ObjectStorage interface {
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSStorage is the Cloud Storage implementation of ObjectStorage.
// It assumes Application Default Credentials are configured.
type GCSStorage struct {
	client *storage.Client
}

// NewGCSStorage creates a storage client.
func NewGCSStorage(ctx context.Context) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorage: creating storage client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put uploads data as a single object.
func (s *GCSStorage) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put: copying to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put: finalizing upload: %w", err)
	}
	return nil
}

// Get downloads an object's bytes.
func (s *GCSStorage) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get: opening object %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Get: reading object: %w", err)
	}
	return data, nil
}

// BucketStore writes reports as JSON objects into one bucket.
type BucketStore struct {
	objects ObjectStorage
	bucket  string
}

// NewBucketStore creates a BucketStore.
func NewBucketStore(objects ObjectStorage, bucket string) *BucketStore {
	return &BucketStore{objects: objects, bucket: bucket}
}

// Save implements Store. It returns the gs:// URI of the written object.
func (s *BucketStore) Save(ctx context.Context, report *Report) (string, error) {
	if report.RunID == "" {
		return "", ErrNoRunID
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Save: encoding report: %w", err)
	}

	object := report.ObjectName()
	if err := s.objects.Put(ctx, s.bucket, object, "application/json", data); err != nil {
		return "", fmt.Errorf("Save: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Load reads back a report by object name.
func (s *BucketStore) Load(ctx context.Context, object string) (*Report, error) {
	data, err := s.objects.Get(ctx, s.bucket, object)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("Load: decoding %s: %w", object, err)
	}
	return &report, nil
}

// NopStore discards reports.
type NopStore struct{}

// Save implements Store.
func (NopStore) Save(ctx context.Context, report *Report) (string, error) {
	return "", nil
}

// Archive saves the report and logs the outcome. Archive failures never fail the run.
func Archive(ctx context.Context, store Store, report *Report) {
	log := logger.FromContext(ctx)

	location, err := store.Save(ctx, report)
	if err != nil {
		log.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to archive run report")
		return
	}
	if location != "" {
		log.Info().Str("run_id", report.RunID).Str("location", location).Msg("Archived run report")
	}
}
