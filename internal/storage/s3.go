package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Storage implements ObjectStorage for AWS S3.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	config     S3Config
	maxRetries int
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// PartSize is the object size above which Put switches to a multipart
	// upload.
	PartSize int64
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:   "us-east-1",
		PartSize: 5 * 1024 * 1024, // 5MB
	}
}

// NewS3Storage creates a new S3 storage client.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StorageWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, cfg), nil
}

// NewS3StorageWithClient creates a new S3 storage with a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	if cfg.PartSize <= 0 {
		cfg.PartSize = DefaultS3Config().PartSize
	}
	return &S3Storage{
		client:     client,
		bucket:     bucket,
		config:     cfg,
		maxRetries: 3,
	}
}

// Put uploads data to key.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if int64(len(data)) > s.config.PartSize {
		var etag string
		err := s.retryWithBackoff(ctx, func() error {
			var uploadErr error
			etag, uploadErr = s.doMultipartUpload(ctx, data, key)
			return uploadErr
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		return etag, nil
	}
	return s.put(ctx, key, data, nil)
}

// ConditionalPut uploads data only if the stored object's ETag is etag.
// An empty etag requires that the object does not exist.
func (s *S3Storage) ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error) {
	return s.put(ctx, key, data, func(in *s3.PutObjectInput) {
		if etag == "" {
			in.IfNoneMatch = aws.String("*")
		} else {
			in.IfMatch = aws.String(etag)
		}
	})
}

func (s *S3Storage) put(ctx context.Context, key string, data []byte, mutate func(*s3.PutObjectInput)) (string, error) {
	var etag string
	err := s.retryWithBackoff(ctx, func() error {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		}
		if mutate != nil {
			mutate(input)
		}
		resp, err := s.client.PutObject(ctx, input)
		if err != nil {
			if isS3PreconditionFailed(err) {
				return ErrPreconditionFailed
			}
			return err
		}
		etag = aws.ToString(resp.ETag)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etag, nil
}

func (s *S3Storage) doMultipartUpload(ctx context.Context, data []byte, key string) (string, error) {
	partSize := s.config.PartSize
	size := int64(len(data))

	createResp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}

	uploadID := createResp.UploadId
	numParts := int(math.Ceil(float64(size) / float64(partSize)))
	completedParts := make([]types.CompletedPart, 0, numParts)

	for partNum := 1; partNum <= numParts; partNum++ {
		offset := int64(partNum-1) * partSize
		end := offset + partSize
		if end > size {
			end = size
		}

		uploadResp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(int32(partNum)),
			Body:          bytes.NewReader(data[offset:end]),
			ContentLength: aws.Int64(end - offset),
		})
		if err != nil {
			s.abortMultipartUpload(ctx, key, uploadID)
			return "", err
		}

		completedParts = append(completedParts, types.CompletedPart{
			ETag:       uploadResp.ETag,
			PartNumber: aws.Int32(int32(partNum)),
		})
	}

	completeResp, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		s.abortMultipartUpload(ctx, key, uploadID)
		return "", err
	}

	return aws.ToString(completeResp.ETag), nil
}

func (s *S3Storage) abortMultipartUpload(ctx context.Context, key string, uploadID *string) {
	_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}

// Get downloads key.
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retryWithBackoff(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// ListObjects returns all keys under prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, aws.ToString(obj.Key))
		}
	}
	sort.Strings(objects)
	return objects, nil
}

func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (s *S3Storage) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		// Don't retry on precondition failures or not found errors
		if errors.Is(lastErr, ErrPreconditionFailed) || errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < s.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
