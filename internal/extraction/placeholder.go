package extraction

import (
	"context"

	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/shopspring/decimal"
)

// PlaceholderNote marks every payload produced by Placeholder.
const PlaceholderNote = "Placeholder extractor used: connect an OCR/LLM backend for real data."

// Placeholder is a deterministic stand-in that ignores the file contents and
// returns the same demo receipt every time. Never use it for real data.
type Placeholder struct{}

// NewPlaceholder creates the stand-in extractor.
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

// Extract returns the demo receipt, with the caption appended as a note.
func (p *Placeholder) Extract(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error) {
	notes := []string{PlaceholderNote}
	if caption != "" {
		notes = append(notes, "Caption: "+caption)
	}

	return &receipt.ReceiptPayload{
		Currency: "IDR",
		Subtotal: decimal.NewFromInt(95000),
		Total:    decimal.NewFromInt(95000),
		Merchant: "Warung Demo",
		Items: []receipt.ExpenseLineItem{
			{Label: "Nasi goreng", Category: "Makan", Amount: decimal.NewFromInt(45000), Confidence: 0.88},
			{Label: "Es teh", Category: "Minuman", Amount: decimal.NewFromInt(15000), Confidence: 0.90},
			{Label: "Pajak layanan", Category: "Pajak", Amount: decimal.NewFromInt(35000), Confidence: 0.65},
		},
		Notes:  notes,
		Source: receipt.DefaultSource,
	}, nil
}

var _ Extractor = (*Placeholder)(nil)
