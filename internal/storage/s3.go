package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*S3Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3Storage{
		client: client,
		bucket: bucket,
	}, nil
}

func s3Key(namespace, key string) string {
	return fmt.Sprintf("%s/%s.state", namespace, key)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *S3Storage) GetState(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validEntry(namespace, key); err != nil {
		return nil, err
	}

	object, err := s.client.GetObject(ctx, s.bucket, s3Key(namespace, key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get auth state from S3: %w", err)
	}
	defer object.Close()

	// GetObject is lazy; a missing key only surfaces on first read.
	data, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}

	return data, nil
}

func (s *S3Storage) SaveState(ctx context.Context, namespace, key string, data []byte) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, s3Key(namespace, key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to save auth state to S3: %w", err)
	}

	return nil
}

func (s *S3Storage) DeleteState(ctx context.Context, namespace, key string) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	err := s.client.RemoveObject(ctx, s.bucket, s3Key(namespace, key), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to delete auth state from S3: %w", err)
	}

	return nil
}
