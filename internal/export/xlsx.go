package export

import (
	"fmt"
	"strconv"

	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the ledger rows.
const SheetName = "Ledger"

// numericColumns are written as numbers when they parse.
var numericColumns = map[string]bool{
	"amount":     true,
	"confidence": true,
}

// WriteXLSX writes records to a workbook at path: one header row in
// ledger column order, then one row per record.
func WriteXLSX(path string, records []ledger.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("WriteXLSX: rename sheet: %w", err)
	}

	header := make([]interface{}, len(ledger.Headers))
	for i, h := range ledger.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("WriteXLSX: header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, ledger.LineNumber(i))
		if err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i, err)
		}
		row := rowValues(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("WriteXLSX: row %d: %w", i, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("WriteXLSX: freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("WriteXLSX: save %s: %w", path, err)
	}

	return nil
}

func rowValues(rec ledger.Record) []interface{} {
	values := make([]interface{}, len(ledger.Headers))
	for i, h := range ledger.Headers {
		v := rec[h]
		values[i] = v
		if !numericColumns[h] {
			continue
		}
		if h == "amount" {
			if d, err := decimal.NewFromString(v); err == nil {
				values[i] = d.InexactFloat64()
			}
			continue
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			values[i] = n
		}
	}
	return values
}
