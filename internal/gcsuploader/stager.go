package gcsuploader

import (
	"context"
	"fmt"

	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/dvloznov/flowrunner/internal/staging"
)

// Stager stages receipts stored in Cloud Storage. The reference's FileID is
// a gs:// URI.
type Stager struct {
	storage    StorageService
	stagingDir string
}

// NewStager creates a stager writing into stagingDir (os.TempDir when empty).
func NewStager(storage StorageService, stagingDir string) *Stager {
	return &Stager{storage: storage, stagingDir: stagingDir}
}

// Fetch downloads the object into a private staged file. The caller owns the
// returned path.
func (s *Stager) Fetch(ctx context.Context, ref receipt.FileReference) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("%w: no storage client configured", receipt.ErrConfiguration)
	}

	bucket, object, err := ParseURI(ref.FileID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", receipt.ErrRemote, err)
	}

	rc, err := s.storage.NewReader(ctx, bucket, object)
	if err != nil {
		return "", fmt.Errorf("%w: open gs://%s/%s: %v", receipt.ErrRemote, bucket, object, err)
	}
	defer rc.Close()

	staged, err := staging.WriteFile(s.stagingDir, staging.SuffixFor(object), rc)
	if err != nil {
		return "", err
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("gcs_uri", ref.FileID).
		Str("file_name", ExtractFilenameFromGCSURI(ref.FileID)).
		Str("staged_path", staged).
		Msg("Staged receipt from GCS")

	return staged, nil
}
