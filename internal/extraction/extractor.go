package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// Extractor turns a staged receipt file plus an optional caption ("" when
// absent) into a structured payload. Implementations fail with
// receipt.ErrExtraction or receipt.ErrExtractionTimeout.
type Extractor interface {
	Extract(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error) {
	return f(ctx, filePath, caption)
}

type timeoutExtractor struct {
	next    Extractor
	timeout time.Duration
}

// WithTimeout bounds every call to next. When the deadline passes the call
// returns receipt.ErrExtractionTimeout even if next ignores its context.
// Unclassified errors from next are wrapped as receipt.ErrExtraction.
func WithTimeout(next Extractor, timeout time.Duration) Extractor {
	return &timeoutExtractor{next: next, timeout: timeout}
}

type extractResult struct {
	payload *receipt.ReceiptPayload
	err     error
}

func (t *timeoutExtractor) Extract(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan extractResult, 1)
	go func() {
		payload, err := t.next.Extract(ctx, filePath, caption)
		done <- extractResult{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classify(ctx, res.err)
		}
		if res.payload == nil {
			return nil, fmt.Errorf("%w: extractor returned no payload", receipt.ErrExtraction)
		}
		return res.payload, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no answer within %s", receipt.ErrExtractionTimeout, t.timeout)
		}
		return nil, fmt.Errorf("%w: %v", receipt.ErrExtraction, ctx.Err())
	}
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, receipt.ErrExtraction), errors.Is(err, receipt.ErrExtractionTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", receipt.ErrExtractionTimeout, err)
	default:
		return fmt.Errorf("%w: %v", receipt.ErrExtraction, err)
	}
}
