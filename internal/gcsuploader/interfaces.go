package gcsuploader

import (
	"context"
	"io"
)

// StorageService is the slice of Cloud Storage the service uses.
type StorageService interface {
	// UploadFile uploads a local file to a bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// NewReader opens an object for reading.
	NewReader(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
}

var _ StorageService = (*Client)(nil)
