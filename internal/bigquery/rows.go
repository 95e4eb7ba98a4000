package bigquery

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/shopspring/decimal"
)

// LineItemRow mirrors one ledger row in receipt_line_items.
type LineItemRow struct {
	LineItemID string `bigquery:"line_item_id"` // REQUIRED
	LineNumber int64  `bigquery:"line_number"`  // REQUIRED, 1 is the header

	RecordedTS      time.Time  `bigquery:"recorded_ts"`      // TIMESTAMP, REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // DATE, REQUIRED

	Merchant bigquery.NullString `bigquery:"merchant"` // NULLABLE
	Category string              `bigquery:"category"` // REQUIRED
	Item     string              `bigquery:"item"`     // REQUIRED

	Amount     *big.Rat `bigquery:"amount"` // NUMERIC, REQUIRED
	Currency   string   `bigquery:"currency"`
	Confidence float64  `bigquery:"confidence"`

	Notes       bigquery.NullString `bigquery:"notes"`        // NULLABLE
	Source      string              `bigquery:"source"`       // REQUIRED
	ReferenceID bigquery.NullString `bigquery:"reference_id"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// LineItemID is the row's ledger.LineID, so re-exporting the same ledger
// never duplicates rows.
func LineItemID(lineNumber int, rec ledger.Record) string {
	return ledger.LineID(lineNumber, rec)
}

// RowFromRecord converts a ledger record read from the given file line.
func RowFromRecord(lineNumber int, rec ledger.Record, exportedAt time.Time) (*LineItemRow, error) {
	ts, err := time.Parse(time.RFC3339Nano, rec["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("RowFromRecord: line %d: parse timestamp %q: %w", lineNumber, rec["timestamp"], err)
	}

	amount, err := decimal.NewFromString(rec["amount"])
	if err != nil {
		return nil, fmt.Errorf("RowFromRecord: line %d: parse amount %q: %w", lineNumber, rec["amount"], err)
	}

	confidence, err := strconv.ParseFloat(rec["confidence"], 64)
	if err != nil {
		return nil, fmt.Errorf("RowFromRecord: line %d: parse confidence %q: %w", lineNumber, rec["confidence"], err)
	}

	return &LineItemRow{
		LineItemID:      LineItemID(lineNumber, rec),
		LineNumber:      int64(lineNumber),
		RecordedTS:      ts.UTC(),
		TransactionDate: civil.DateOf(ts),
		Merchant:        nullString(rec["merchant"], ledger.MerchantPlaceholder),
		Category:        rec["category"],
		Item:            rec["item"],
		Amount:          amount.Rat(),
		Currency:        rec["currency"],
		Confidence:      confidence,
		Notes:           nullString(rec["notes"], ""),
		Source:          rec["source"],
		ReferenceID:     nullString(rec["reference_id"], ""),
		ExportedTS:      exportedAt.UTC(),
	}, nil
}

// RowsFromRecords converts records in file order. Record i sits on line i+2.
func RowsFromRecords(records []ledger.Record, exportedAt time.Time) ([]*LineItemRow, error) {
	rows := make([]*LineItemRow, 0, len(records))
	for i, rec := range records {
		row, err := RowFromRecord(ledger.LineNumber(i), rec, exportedAt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func nullString(s, absent string) bigquery.NullString {
	if s == "" || s == absent {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}
