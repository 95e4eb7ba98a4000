package bigquery

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/logger"
)

const insertBatchSize = 500

// ExportResult summarizes one export run.
type ExportResult struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Exporter mirrors ledger rows into BigQuery.
type Exporter struct {
	repo LineItemRepository
	now  func() time.Time
}

// NewExporter creates an exporter writing through repo.
func NewExporter(repo LineItemRepository) *Exporter {
	return &Exporter{repo: repo, now: time.Now}
}

// Export inserts every record whose line item id is not yet in the table.
func (e *Exporter) Export(ctx context.Context, records []ledger.Record) (ExportResult, error) {
	log := logger.FromContext(ctx)

	rows, err := RowsFromRecords(records, e.now())
	if err != nil {
		return ExportResult{}, fmt.Errorf("Export: %w", err)
	}
	result := ExportResult{Total: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}

	existing, err := e.repo.ExistingLineItemIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("Export: %w", err)
	}

	pending := make([]*LineItemRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := existing[row.LineItemID]; ok {
			result.Skipped++
			continue
		}
		pending = append(pending, row)
	}

	for start := 0; start < len(pending); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := e.repo.InsertLineItems(ctx, pending[start:end]); err != nil {
			return result, fmt.Errorf("Export: batch at %d: %w", start, err)
		}
		result.Inserted += end - start
	}

	log.Info().
		Int("total", result.Total).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("Ledger exported to BigQuery")

	return result, nil
}
