package notionsync

import (
	"strconv"
	"time"

	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the receipts database.
const (
	PropLineID     = "Line ID"
	PropItem       = "Item"
	PropMerchant   = "Merchant"
	PropCategory   = "Category"
	PropAmount     = "Amount"
	PropCurrency   = "Currency"
	PropDate       = "Date"
	PropConfidence = "Confidence"
	PropNotes      = "Notes"
	PropSource     = "Source"
	PropReference  = "Reference"
)

// RecordToNotionProperties maps one ledger row to database properties.
// Empty cells and the merchant placeholder are left out; unparseable
// numbers are skipped rather than written as zero.
func RecordToNotionProperties(lineID string, rec ledger.Record) notionapi.Properties {
	props := notionapi.Properties{
		PropLineID: notionapi.TitleProperty{
			Title: richText(lineID),
		},
	}

	if item := rec["item"]; item != "" {
		props[PropItem] = notionapi.RichTextProperty{RichText: richText(item)}
	}
	if m := rec["merchant"]; m != "" && m != ledger.MerchantPlaceholder {
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(m)}
	}
	if notes := rec["notes"]; notes != "" {
		props[PropNotes] = notionapi.RichTextProperty{RichText: richText(notes)}
	}
	if ref := rec["reference_id"]; ref != "" {
		props[PropReference] = notionapi.RichTextProperty{RichText: richText(ref)}
	}

	for prop, field := range map[string]string{
		PropCategory: "category",
		PropCurrency: "currency",
		PropSource:   "source",
	} {
		if v := rec[field]; v != "" {
			props[prop] = notionapi.SelectProperty{Select: notionapi.Option{Name: v}}
		}
	}

	if amount, err := decimal.NewFromString(rec["amount"]); err == nil {
		props[PropAmount] = notionapi.NumberProperty{Number: amount.InexactFloat64()}
	}
	if conf, err := strconv.ParseFloat(rec["confidence"], 64); err == nil {
		props[PropConfidence] = notionapi.NumberProperty{Number: conf}
	}

	if ts, err := time.Parse(time.RFC3339Nano, rec["timestamp"]); err == nil {
		d := notionapi.Date(ts.UTC())
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// extractLineID reads the Line ID title of a page, or "" if it has none.
func extractLineID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropLineID]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}
