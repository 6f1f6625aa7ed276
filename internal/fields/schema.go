package fields

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zhangjing-777/receipt-processing-center/internal/llm"
)

// invoiceSchema is compiled once; every extraction validates against it.
var invoiceSchema = llm.MustCompileSchema(BuildInvoiceJSONSchema())

// BuildInvoiceJSONSchema returns the JSON-Schema the model output must match.
// Only the numeric total and the currency are required; everything else is
// optional and defaults to absent, never to a fabricated value.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string"},
			"invoice_date":   map[string]any{"type": "string"},
			"buyer":          map[string]any{"type": "string"},
			"seller":         map[string]any{"type": "string"},
			"invoice_total":  map[string]any{"type": "number"},
			"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"category":       map[string]any{"type": "string"},
			"address":        map[string]any{"type": "string"},
		},
		"required": []string{"invoice_total", "currency"},
	}
}

// SanitizeFields normalizes tolerable deviations in the model output before
// schema validation: trims and uppercases the currency, converts a numeric
// string total to a number, and drops explicit nulls on optional fields.
// It never invents values for missing fields.
func SanitizeFields(doc []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}

	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(strings.TrimSpace(v))
	}

	if v, ok := m["invoice_total"].(string); ok {
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			m["invoice_total"] = f
		}
		// otherwise leave it for the schema gate to reject
	}

	for k, v := range m {
		if v == nil {
			if k == "invoice_total" || k == "currency" {
				continue // required fields stay visible to the schema gate
			}
			delete(m, k)
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-marshal sanitized fields: %w", err)
	}
	return b, nil
}
