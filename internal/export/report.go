package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zhangjing-777/receipt-processing-center/internal/summary"
)

// BuildReport renders the view into an XLSX workbook: one row per receipt,
// a totals sheet, and an omissions sheet when any line was left out.
func BuildReport(view *summary.View) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const receipts = "Receipts"
	if err := f.SetSheetName("Sheet1", receipts); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	header := []any{"Record ID", "Buyer", "Seller", "Date", "Category", "Amount", "Currency"}
	if err := f.SetSheetRow(receipts, "A1", &header); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	row := 2
	for _, line := range view.Lines {
		if line.Omitted != "" {
			continue
		}
		cells := []any{
			line.RecordID.String(), line.Buyer, line.Seller, line.InvoiceDate,
			line.Category, summary.FormatMinor(line.AmountMinor), line.Currency,
		}
		if err := f.SetSheetRow(receipts, fmt.Sprintf("A%d", row), &cells); err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		row++
	}

	const totals = "Totals"
	if _, err := f.NewSheet(totals); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	totalsHeader := []any{"Buyer", "Category", "Currency", "Amount", "Receipts"}
	if err := f.SetSheetRow(totals, "A1", &totalsHeader); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	row = 2
	for _, g := range view.Groups {
		cells := []any{g.Buyer, g.Category, g.Currency, summary.FormatMinor(g.AmountMinor), g.Count}
		if err := f.SetSheetRow(totals, fmt.Sprintf("A%d", row), &cells); err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		row++
	}
	row++ // blank separator before grand totals
	for _, t := range view.BuyerTotals {
		cells := []any{t.Buyer, "TOTAL", t.Currency, summary.FormatMinor(t.AmountMinor), ""}
		if err := f.SetSheetRow(totals, fmt.Sprintf("A%d", row), &cells); err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		row++
	}

	var omitted []summary.Line
	for _, line := range view.Lines {
		if line.Omitted != "" {
			omitted = append(omitted, line)
		}
	}
	if len(omitted) > 0 {
		const omissions = "Omissions"
		if _, err := f.NewSheet(omissions); err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		omHeader := []any{"Record ID", "Buyer", "Date", "Reason"}
		if err := f.SetSheetRow(omissions, "A1", &omHeader); err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		for i, line := range omitted {
			cells := []any{line.RecordID.String(), line.Buyer, line.InvoiceDate, line.Omitted}
			if err := f.SetSheetRow(omissions, fmt.Sprintf("A%d", i+2), &cells); err != nil {
				return nil, fmt.Errorf("report: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return buf.Bytes(), nil
}
