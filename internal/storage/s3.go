package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/timmy/transformer/internal/domain"
)

// S3Storage implements ObjectStorage for S3 and S3-compatible services.
// Each instance owns its HTTP transport so Close really drops its connections.
type S3Storage struct {
	client    *s3.Client
	bucket    string
	transport *http.Transport
}

// NewS3Storage connects to the bucket described by creds. A non-empty
// endpoint replaces the AWS endpoints and switches to path-style addressing.
func NewS3Storage(ctx context.Context, creds *domain.StorageCredentials) (*S3Storage, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("incomplete storage credentials")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{Transport: transport, Timeout: 30 * time.Minute}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(creds.Region),
		config.WithHTTPClient(httpClient),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(creds.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    creds.Bucket,
		transport: transport,
	}, nil
}

// normalizeEndpoint adds a scheme to bare host endpoints and drops trailing slashes
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}

// Upload uploads an object to storage
func (s *S3Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	return nil
}

// Close releases the idle connections of this storage's transport.
func (s *S3Storage) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}
