package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store is an object-storage-backed CAS implementation for deployments
// that want blobs off local disk. It shares FileStore's canonicalization,
// hashing, and envelope format — only the blob transport differs.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint, e.g. for MinIO
	Prefix   string
}

// NewS3Store creates an S3-backed Store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("content: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(id Id) string {
	return s.prefix + string(id.Prefix()) + "/" + string(id) + ".json"
}

func (s *S3Store) Store(ctx context.Context, v any) (Id, error) {
	id, err := Hash(v)
	if err != nil {
		return "", err
	}

	key := s.key(id)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err == nil {
		return id, nil
	}

	data, err := json.Marshal(envelope{Wrapped: Wrap(v)})
	if err != nil {
		return "", fmt.Errorf("content: marshal envelope: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("content: s3 put: %w", err)
	}
	return id, nil
}

func (s *S3Store) Get(ctx context.Context, id Id) (any, bool, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(id))})
	if err != nil {
		return nil, false, nil
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("content: s3 read: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("content: corrupt envelope: %w", err)
	}
	return unwrap(env.Wrapped), true, nil
}

func (s *S3Store) Exists(ctx context.Context, id Id) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(id))})
	return err == nil, nil
}

func (s *S3Store) Verify(ctx context.Context, id Id) (bool, error) {
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
