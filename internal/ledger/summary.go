package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Summary aggregates ledger rows for listing endpoints.
type Summary struct {
	Count  int               `json:"count"`
	Totals map[string]string `json:"totals"` // currency -> sum of amounts
}

// Summarize counts rows and sums amounts per currency. Rows whose amount does
// not parse are counted but left out of the totals.
func Summarize(records []Record) Summary {
	sums := make(map[string]decimal.Decimal)
	for _, rec := range records {
		amount, err := decimal.NewFromString(rec["amount"])
		if err != nil {
			continue
		}
		cur := rec["currency"]
		sums[cur] = sums[cur].Add(amount)
	}

	totals := make(map[string]string, len(sums))
	for cur, sum := range sums {
		totals[cur] = sum.StringFixed(2)
	}

	return Summary{Count: len(records), Totals: totals}
}

// Currencies returns the currency codes present in a summary, sorted.
func (s Summary) Currencies() []string {
	out := make([]string, 0, len(s.Totals))
	for cur := range s.Totals {
		out = append(out, cur)
	}
	sort.Strings(out)
	return out
}
