package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSource is the origin channel tag used when a payload does not set one.
const DefaultSource = "telegram"

// ExpenseLineItem is one extracted line of a receipt.
// It is a value type; copies never alias each other.
type ExpenseLineItem struct {
	Label      string          `json:"label"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`     // any sign allowed
	Confidence float64         `json:"confidence"` // within [0,1]
}

// NewExpenseLineItem builds a validated line item.
func NewExpenseLineItem(label, category string, amount decimal.Decimal, confidence float64) (ExpenseLineItem, error) {
	item := ExpenseLineItem{
		Label:      label,
		Category:   category,
		Amount:     amount,
		Confidence: confidence,
	}
	if err := item.Validate(); err != nil {
		return ExpenseLineItem{}, err
	}
	return item, nil
}

// Validate checks required fields and the confidence range.
func (i ExpenseLineItem) Validate() error {
	if strings.TrimSpace(i.Label) == "" {
		return fmt.Errorf("line item: label is required")
	}
	if strings.TrimSpace(i.Category) == "" {
		return fmt.Errorf("line item %q: category is required", i.Label)
	}
	if !(i.Confidence >= 0 && i.Confidence <= 1) {
		return fmt.Errorf("line item %q: confidence %v outside [0,1]", i.Label, i.Confidence)
	}
	return nil
}

// ReceiptPayload is the structured result of extracting one receipt.
// Produced by an extractor, consumed read-only by the ledger.
type ReceiptPayload struct {
	Currency        string              `json:"currency"`
	Total           decimal.Decimal     `json:"total"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Tax             decimal.NullDecimal `json:"tax"`
	Merchant        string              `json:"merchant,omitempty"`
	TransactionTime *time.Time          `json:"transaction_time,omitempty"`
	Items           []ExpenseLineItem   `json:"items"`
	Notes           []string            `json:"notes"`
	Source          string              `json:"source"`
	ReferenceID     string              `json:"reference_id,omitempty"`
}

// SourceOrDefault returns Source, or DefaultSource when it is blank.
func (p *ReceiptPayload) SourceOrDefault() string {
	if strings.TrimSpace(p.Source) == "" {
		return DefaultSource
	}
	return p.Source
}

// Validate checks every line item.
func (p *ReceiptPayload) Validate() error {
	for idx, item := range p.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", idx, err)
		}
	}
	return nil
}

// FileReference points at a remotely stored file, as delivered by the bot platform.
type FileReference struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Context is caller-supplied metadata carried alongside a submission.
// The ingestion core never interprets it.
type Context struct {
	ChatID      *int64 `json:"chat_id,omitempty"`
	User        string `json:"user,omitempty"`
	RawFilePath string `json:"raw_file_path,omitempty"`
}

// IngestionResult is returned once a submission has been fully persisted.
type IngestionResult struct {
	Payload        *ReceiptPayload `json:"payload"`
	Context        Context         `json:"context"`
	LedgerRowIndex int             `json:"ledger_row_index"`
}
