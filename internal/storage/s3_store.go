package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client defines the S3 operations the store needs.
// An interface so tests can substitute an in-memory implementation.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	HeadObject(ctx context.Context, bucket, key string) (bool, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3Store implements Store on an S3 bucket under an optional key prefix.
type S3Store struct {
	bucket string
	prefix string
	client S3Client
}

// NewS3Store creates an S3-backed store.
func NewS3Store(bucket, prefix string, client S3Client) *S3Store {
	return &S3Store{
		bucket: bucket,
		prefix: prefix,
		client: client,
	}
}

// Has checks if an object exists in S3.
func (s *S3Store) Has(ctx context.Context, key string) (bool, error) {
	return s.client.HeadObject(ctx, s.bucket, s.objectKey(key))
}

// Get reads the object stored under key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	exists, err := s.client.HeadObject(ctx, s.bucket, s.objectKey(key))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound(key)
	}
	return s.client.GetObject(ctx, s.bucket, s.objectKey(key))
}

// Set uploads value under key.
func (s *S3Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.PutObject(ctx, s.bucket, s.objectKey(key), value)
}

// Delete removes the object stored under key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	exists, err := s.client.HeadObject(ctx, s.bucket, s.objectKey(key))
	if err != nil {
		return err
	}
	if !exists {
		return notFound(key)
	}
	return s.client.DeleteObject(ctx, s.bucket, s.objectKey(key))
}

// objectKey constructs the full S3 key by combining prefix and key.
func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// AWSS3Client implements the S3Client interface using AWS SDK v2
type AWSS3Client struct {
	s3Client *s3.Client
}

// NewAWSS3Client creates a new AWS S3 client
func NewAWSS3Client(s3Client *s3.Client) *AWSS3Client {
	return &AWSS3Client{s3Client: s3Client}
}

// GetObject retrieves an object from S3
func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// PutObject uploads an object to S3
func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}
	return nil
}

// HeadObject checks if an object exists in S3
func (c *AWSS3Client) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s in bucket %s: %w", key, bucket, err)
	}
	return true, nil
}

// DeleteObject removes an object from S3
func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, bucket, err)
	}
	return nil
}

// MockS3Client provides a mock implementation for testing
type MockS3Client struct {
	storage map[string][]byte
}

// NewMockS3Client creates a new mock S3 client for testing
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{storage: make(map[string][]byte)}
}

// GetObject retrieves an object from mock storage
func (m *MockS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, exists := m.storage[bucket+"/"+key]
	if !exists {
		return nil, fmt.Errorf("object not found")
	}
	return data, nil
}

// PutObject stores an object in mock storage
func (m *MockS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	m.storage[bucket+"/"+key] = stored
	return nil
}

// HeadObject checks if an object exists in mock storage
func (m *MockS3Client) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, exists := m.storage[bucket+"/"+key]
	return exists, nil
}

// DeleteObject removes an object from mock storage
func (m *MockS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	delete(m.storage, bucket+"/"+key)
	return nil
}
