package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/logger"
)

// Opener creates a storage connection for a set of credentials.
type Opener func(ctx context.Context, creds *domain.StorageCredentials) (ObjectStorage, error)

// S3Publisher uploads artifacts, opening one connection per publish call.
type S3Publisher struct {
	open Opener
}

// NewS3Publisher creates a publisher backed by S3Storage.
func NewS3Publisher() *S3Publisher {
	return NewPublisher(func(ctx context.Context, creds *domain.StorageCredentials) (ObjectStorage, error) {
		return NewS3Storage(ctx, creds)
	})
}

// NewPublisher creates a publisher using open for connections.
func NewPublisher(open Opener) *S3Publisher {
	return &S3Publisher{open: open}
}

// Publish uploads filePath to creds.Bucket under key. The connection is
// closed before Publish returns, whatever the outcome.
func (p *S3Publisher) Publish(ctx context.Context, creds *domain.StorageCredentials, key, filePath string) (err error) {
	store, err := p.open(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close storage connection: %w", cerr)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	if err := store.Upload(ctx, key, f, info.Size(), getContentType(filePath)); err != nil {
		return err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"bucket": creds.Bucket,
		"key":    key,
		"size":   info.Size(),
	}).Info("Published transformation result")
	return nil
}

func getContentType(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "gml", "xml":
		return "application/gml+xml"
	case "json", "geojson":
		return "application/geo+json"
	case "csv":
		return "text/csv"
	case "zip":
		return "application/zip"
	case "gpkg":
		return "application/geopackage+sqlite3"
	default:
		return "application/octet-stream"
	}
}
