package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// BackupLedger uploads a snapshot of the ledger file and returns its gs:// URI.
func BackupLedger(ctx context.Context, svc StorageService, bucket, csvPath string, at time.Time) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("%w: gcs bucket is not set", receipt.ErrConfiguration)
	}
	if _, err := os.Stat(csvPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("BackupLedger: ledger %s does not exist", csvPath)
		}
		return "", fmt.Errorf("BackupLedger: stat ledger: %w", err)
	}

	object := BackupObjectName(csvPath, at)
	if err := svc.UploadFile(ctx, bucket, object, csvPath); err != nil {
		return "", fmt.Errorf("BackupLedger: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
