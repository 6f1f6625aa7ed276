// Package summary turns a user's stored receipts into grouped spending
// totals plus a narrative, the input for report generation and export.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/llm"
)

// Line is one decrypted receipt reduced to what reports need.
type Line struct {
	RecordID    uuid.UUID
	Buyer       string
	Seller      string
	Category    string // canonical bucket
	Currency    string
	InvoiceDate string
	AmountMinor int64
	FileKey     string // storage key of the original document
	Omitted     string // non-empty when the line could not be included, with why
}

// GroupTotal is the sum for one (buyer, category, currency) bucket. Amounts
// in different currencies are never added together.
type GroupTotal struct {
	Buyer       string
	Category    string
	Currency    string
	AmountMinor int64
	Count       int
}

// BuyerTotal is the grand total for one buyer in one currency.
type BuyerTotal struct {
	Buyer       string
	Currency    string
	AmountMinor int64
}

// View is the aggregation output: deterministic ordering throughout, so the
// same records always render the same report.
type View struct {
	Title       string
	Lines       []Line
	Groups      []GroupTotal
	BuyerTotals []BuyerTotal
	Narrative   string
}

// Aggregator groups decrypted receipts and optionally narrates the result.
type Aggregator struct {
	codec    *cryptobox.Codec
	narrator llm.Completer // nil disables the model narrative
	model    string
	log      *slog.Logger
}

// NewAggregator builds an Aggregator; narrator may be nil, and a nil logger
// falls back to slog.Default().
func NewAggregator(codec *cryptobox.Codec, narrator llm.Completer, model string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{codec: codec, narrator: narrator, model: model, log: logger}
}

// Aggregate decrypts records, groups them by (buyer, category) with
// per-currency subtotals, and produces a narrative. A record with an
// unparseable amount is kept as an omitted line rather than failing the
// pass; decryption failure is fatal.
func (a *Aggregator) Aggregate(ctx context.Context, records []entity.ReceiptRecord, title string) (*View, error) {
	view := &View{Title: title}

	type groupKey struct{ buyer, category, currency string }
	groups := map[groupKey]*GroupTotal{}
	buyerTotals := map[[2]string]int64{} // (buyer, currency)

	for i := range records {
		rec := records[i] // decrypt a copy, never the caller's slice
		if err := a.codec.DecryptReceipt(&rec); err != nil {
			return nil, fmt.Errorf("decrypt record %s: %w", rec.ID, err)
		}

		line := Line{
			RecordID:    rec.ID,
			Buyer:       rec.Buyer,
			Seller:      rec.Seller,
			Category:    NormalizeCategory(rec.Category),
			Currency:    rec.Currency,
			InvoiceDate: rec.InvoiceDate,
			FileKey:     rec.FileURL,
		}

		minor, err := ParseMinor(rec.Total)
		if err != nil {
			a.log.Warn("summary.line.omitted", "record_id", rec.ID, "error", err)
			line.Omitted = "unparseable amount"
			view.Lines = append(view.Lines, line)
			continue
		}
		line.AmountMinor = minor
		view.Lines = append(view.Lines, line)

		key := groupKey{line.Buyer, line.Category, line.Currency}
		g, ok := groups[key]
		if !ok {
			g = &GroupTotal{Buyer: line.Buyer, Category: line.Category, Currency: line.Currency}
			groups[key] = g
		}
		g.AmountMinor += minor
		g.Count++

		buyerTotals[[2]string{line.Buyer, line.Currency}] += minor
	}

	for _, g := range groups {
		view.Groups = append(view.Groups, *g)
	}
	sort.Slice(view.Groups, func(i, j int) bool {
		gi, gj := view.Groups[i], view.Groups[j]
		if gi.Buyer != gj.Buyer {
			return gi.Buyer < gj.Buyer
		}
		if gi.Category != gj.Category {
			return gi.Category < gj.Category
		}
		return gi.Currency < gj.Currency
	})

	for k, v := range buyerTotals {
		view.BuyerTotals = append(view.BuyerTotals, BuyerTotal{Buyer: k[0], Currency: k[1], AmountMinor: v})
	}
	sort.Slice(view.BuyerTotals, func(i, j int) bool {
		ti, tj := view.BuyerTotals[i], view.BuyerTotals[j]
		if ti.Buyer != tj.Buyer {
			return ti.Buyer < tj.Buyer
		}
		return ti.Currency < tj.Currency
	})

	view.Narrative = a.narrate(ctx, view)
	return view, nil
}

// narrate asks the model to describe the grouped totals, degrading to the
// deterministic renderer on any failure.
func (a *Aggregator) narrate(ctx context.Context, view *View) string {
	fallback := RenderText(view)
	if a.narrator == nil || len(view.Groups) == 0 {
		return fallback
	}

	content, err := a.narrator.Complete(ctx, a.model, []llm.Message{
		{Role: "system", Content: "You are an assistant that writes short, factual expense summaries."},
		{Role: "user", Content: "Write a brief spending summary from these grouped totals. " +
			"Do not invent numbers; mention each currency separately.\n\n" + fallback},
	}, nil)
	if err != nil || strings.TrimSpace(content) == "" {
		a.log.Warn("summary.narrative.fallback", "error", err)
		return fallback
	}
	return strings.TrimSpace(content)
}

// RenderText is the deterministic plain-text rendering of a view, also used
// as the narrative fallback.
func RenderText(view *View) string {
	var b strings.Builder
	if view.Title != "" {
		b.WriteString(view.Title + "\n\n")
	}
	for _, g := range view.Groups {
		fmt.Fprintf(&b, "%s / %s: %s %s (%d receipts)\n",
			g.Buyer, g.Category, FormatMinor(g.AmountMinor), g.Currency, g.Count)
	}
	if len(view.BuyerTotals) > 0 {
		b.WriteString("\nTotals:\n")
		for _, t := range view.BuyerTotals {
			fmt.Fprintf(&b, "%s: %s %s\n", t.Buyer, FormatMinor(t.AmountMinor), t.Currency)
		}
	}
	return strings.TrimSpace(b.String())
}
