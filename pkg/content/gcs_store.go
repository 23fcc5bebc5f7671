//go:build gcp

package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is a Google Cloud Storage-backed CAS implementation, built
// behind the "gcp" build tag so the default build does not require pulling
// in GCP credentials discovery at process start.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig configures a GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a GCS-backed Store using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("content: create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) path(id Id) string {
	return s.prefix + string(id.Prefix()) + "/" + string(id) + ".json"
}

func (s *GCSStore) Store(ctx context.Context, v any) (Id, error) {
	id, err := Hash(v)
	if err != nil {
		return "", err
	}

	obj := s.client.Bucket(s.bucket).Object(s.path(id))
	if _, err := obj.Attrs(ctx); err == nil {
		return id, nil
	}

	data, err := json.Marshal(envelope{Wrapped: Wrap(v)})
	if err != nil {
		return "", fmt.Errorf("content: marshal envelope: %w", err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("content: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("content: gcs close: %w", err)
	}
	return id, nil
}

func (s *GCSStore) Get(ctx context.Context, id Id) (any, bool, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.path(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("content: gcs get: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("content: gcs read: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("content: corrupt envelope: %w", err)
	}
	return unwrap(env.Wrapped), true, nil
}

func (s *GCSStore) Exists(ctx context.Context, id Id) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(s.path(id)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("content: gcs attrs: %w", err)
}

func (s *GCSStore) Verify(ctx context.Context, id Id) (bool, error) {
	v, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	recomputed, err := Hash(v)
	if err != nil {
		return false, err
	}
	return recomputed == id, nil
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
