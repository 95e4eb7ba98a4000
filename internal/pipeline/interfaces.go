package pipeline

import (
	"context"

	"github.com/dvloznov/flowrunner/internal/gcsuploader"
	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/dvloznov/flowrunner/internal/telegram"
)

// Stager fetches a remote file reference into a private local file.
// The caller owns the returned path and must remove it.
type Stager interface {
	Fetch(ctx context.Context, ref receipt.FileReference) (string, error)
}

// LedgerWriter appends the rows of one receipt and returns the pre-write row index.
type LedgerWriter interface {
	Append(path string, payload *receipt.ReceiptPayload) (int, error)
}

// Compile-time checks for the concrete implementations.
var (
	_ Stager       = (*telegram.Client)(nil)
	_ Stager       = (*gcsuploader.Stager)(nil)
	_ LedgerWriter = (*ledger.Store)(nil)
)
