package storage

import (
	"context"
	"io"

	"github.com/timmy/transformer/internal/domain"
)

// ObjectStorage is a connection to a bucket. Close releases the connection.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	io.Closer
}

// Publisher delivers a finished artifact to object storage.
type Publisher interface {
	Publish(ctx context.Context, creds *domain.StorageCredentials, key, filePath string) error
}
