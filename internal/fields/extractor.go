// Package fields converts raw OCR text into a structured invoice record via
// a text-generation model, validating the output against a fixed schema.
package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/llm"
)

// InvoiceFields is the normalized shape we want from the model.
type InvoiceFields struct {
	InvoiceNumber string
	InvoiceDate   string // as emitted; normalized downstream
	Buyer         string
	Seller        string
	Category      string
	Total         string // decimal string, two places
	Currency      string // ISO 4217
	Address       string
}

// Extractor implements text -> InvoiceFields through one chat completion.
type Extractor struct {
	client llm.Completer
	model  string
	log    *slog.Logger
}

// NewExtractor builds a field extractor; a nil logger falls back to
// slog.Default().
func NewExtractor(client llm.Completer, model string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, model: model, log: logger}
}

const maxPromptChars = 6000

const systemPrompt = "You are an AI assistant specialized in extracting structured data."

func buildUserPrompt(rawText string) string {
	if len(rawText) > maxPromptChars {
		rawText = rawText[:maxPromptChars]
	}
	return `This is the raw text extracted from an invoice using OCR.
Please extract the following fields and output them as a JSON object, with strict type and format requirements:

- invoice_number: string
- invoice_date: string, must be in "YYYY-MM-DD" format (ISO 8601), e.g. "2025-06-23"
- buyer (purchaser): string
- seller (vendor): string
- invoice_total: number (no currency symbols, commas, or quotes, just the numeric value, e.g. 1234.56)
- currency: string (e.g. "USD", "CNY")
- category: string
- address: string

If a field is not present in the text, omit it. Never invent values.
Return only the JSON object, no extra explanation.

Example output:
{
  "invoice_number": "INV-20250623-001",
  "invoice_date": "2025-06-23",
  "buyer": "Acme Corp",
  "seller": "Widget Inc",
  "invoice_total": 1234.56,
  "currency": "USD",
  "category": "Office Supplies",
  "address": "123 Main St, Springfield"
}

Invoice text is as follows:
` + rawText
}

// ExtractFields sends rawText to the model and returns the validated fields
// together with the raw JSON the model produced. Parse/validation problems
// are ErrSchemaViolation; transport problems propagate as retryable errors.
func (e *Extractor) ExtractFields(ctx context.Context, rawText string) (InvoiceFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	e.log.Info("fields.extract.start", "req_id", rid, "model", e.model, "text_len", len(rawText))

	content, err := e.client.Complete(ctx, e.model, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(rawText)},
	}, nil)
	if err != nil {
		e.log.Error("fields.extract.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return InvoiceFields{}, nil, fmt.Errorf("%w: field extraction call: %v", common.ErrExtractionFailed, err)
	}

	raw, err := llm.CleanJSON(content)
	if err != nil {
		e.log.Error("fields.extract.unparsable", "req_id", rid, "error", err)
		return InvoiceFields{}, []byte(content), fmt.Errorf("%w: %v", common.ErrSchemaViolation, err)
	}

	raw, err = SanitizeFields(raw)
	if err != nil {
		return InvoiceFields{}, raw, fmt.Errorf("%w: sanitize: %v", common.ErrSchemaViolation, err)
	}

	if err := invoiceSchema.Validate(raw); err != nil {
		e.log.Error("fields.extract.schema_validation_failed", "req_id", rid, "error", err)
		return InvoiceFields{}, raw, fmt.Errorf("%w: %v", common.ErrSchemaViolation, err)
	}

	var parsed struct {
		InvoiceNumber string  `json:"invoice_number"`
		InvoiceDate   string  `json:"invoice_date"`
		Buyer         string  `json:"buyer"`
		Seller        string  `json:"seller"`
		InvoiceTotal  float64 `json:"invoice_total"`
		Currency      string  `json:"currency"`
		Category      string  `json:"category"`
		Address       string  `json:"address"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return InvoiceFields{}, raw, fmt.Errorf("%w: unmarshal fields: %v", common.ErrSchemaViolation, err)
	}

	out := InvoiceFields{
		InvoiceNumber: parsed.InvoiceNumber,
		InvoiceDate:   parsed.InvoiceDate,
		Buyer:         parsed.Buyer,
		Seller:        parsed.Seller,
		Category:      parsed.Category,
		Total:         strconv.FormatFloat(parsed.InvoiceTotal, 'f', 2, 64),
		Currency:      parsed.Currency,
		Address:       parsed.Address,
	}

	e.log.Info("fields.extract.ok",
		"req_id", rid,
		"buyer", out.Buyer != "",
		"seller", out.Seller != "",
		"total", out.Total,
		"currency", out.Currency,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, raw, nil
}
