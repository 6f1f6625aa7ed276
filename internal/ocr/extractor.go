// Package ocr converts an image or PDF document into raw text through a
// vision-capable chat model, trying a low-cost primary model first and
// falling back exactly once to a stronger model.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/ingest"
	"github.com/zhangjing-777/receipt-processing-center/internal/llm"
)

const transcribePrompt = "Transcribe every piece of text in this document exactly as written, " +
	"preserving line breaks. For multi-page documents transcribe pages in order and start each " +
	"page with a line of the form: --- page N ---. Output only the transcription."

// pdfPlugins asks the endpoint's file parser to extract PDF pages as text
// before the model sees them, so page order is preserved.
var pdfPlugins = []map[string]any{
	{"id": "file-parser", "pdf": map[string]any{"engine": "pdf-text"}},
}

type Extractor struct {
	client   llm.Completer
	primary  string
	fallback string
	log      *slog.Logger
}

// NewExtractor builds the two-model OCR extractor; a nil logger falls back
// to slog.Default().
func NewExtractor(client llm.Completer, primary, fallback string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, primary: primary, fallback: fallback, log: logger}
}

type docKind int

const (
	kindUnknown docKind = iota
	kindImage
	kindPDF
)

func classify(doc ingest.Document) docKind {
	ct := strings.ToLower(doc.ContentType)
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	switch {
	case ct == "application/pdf" || ext == ".pdf":
		return kindPDF
	case strings.HasPrefix(ct, "image/"),
		ext == ".png", ext == ".jpg", ext == ".jpeg", ext == ".webp", ext == ".gif":
		return kindImage
	}
	return kindUnknown
}

// Extract runs OCR over the document. The primary model is tried first; on
// any failure (transport, non-2xx, malformed or empty response) the stronger
// fallback model is tried once. A third attempt is never made. Failures are
// tagged: ErrUnreadableInput when the input itself cannot be read,
// ErrExtractionFailed for upstream faults.
func (e *Extractor) Extract(ctx context.Context, doc ingest.Document) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", fmt.Errorf("%w: empty document %q", common.ErrUnreadableInput, doc.Filename)
	}
	kind := classify(doc)
	if kind == kindUnknown {
		return "", fmt.Errorf("%w: unsupported content type %q for %q",
			common.ErrUnreadableInput, doc.ContentType, doc.Filename)
	}

	messages, extra := e.buildRequest(kind, doc)

	start := time.Now()
	text, primaryErr := e.client.Complete(ctx, e.primary, messages, extra)
	if primaryErr == nil {
		e.log.Info("ocr.extract.ok", "file", doc.Filename, "model", e.primary,
			"chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
		return text, nil
	}
	e.log.Warn("ocr.extract.primary_failed", "file", doc.Filename,
		"model", e.primary, "error", primaryErr)

	text, fallbackErr := e.client.Complete(ctx, e.fallback, messages, extra)
	if fallbackErr == nil {
		e.log.Info("ocr.extract.ok", "file", doc.Filename, "model", e.fallback,
			"chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
		return text, nil
	}
	e.log.Error("ocr.extract.failed", "file", doc.Filename,
		"primary_error", primaryErr, "fallback_error", fallbackErr)

	// Both models answered but produced nothing: the document itself is
	// unreadable. Anything else is an upstream extraction fault.
	if errors.Is(primaryErr, llm.ErrEmptyCompletion) && errors.Is(fallbackErr, llm.ErrEmptyCompletion) {
		return "", fmt.Errorf("%w: %q produced no text on either model", common.ErrUnreadableInput, doc.Filename)
	}
	return "", fmt.Errorf("%w: both models failed for %q: %v", common.ErrExtractionFailed, doc.Filename, fallbackErr)
}

func (e *Extractor) buildRequest(kind docKind, doc ingest.Document) ([]llm.Message, map[string]any) {
	data := base64.StdEncoding.EncodeToString(doc.Bytes)

	switch kind {
	case kindPDF:
		msg := llm.Message{
			Role: "user",
			Content: []map[string]any{
				{"type": "text", "text": transcribePrompt},
				{"type": "file", "file": map[string]any{
					"filename":  doc.Filename,
					"file_data": "data:application/pdf;base64," + data,
				}},
			},
		}
		return []llm.Message{msg}, map[string]any{"plugins": pdfPlugins}
	default:
		ct := doc.ContentType
		if !strings.HasPrefix(ct, "image/") {
			ct = "image/png"
		}
		msg := llm.Message{
			Role: "user",
			Content: []map[string]any{
				{"type": "text", "text": transcribePrompt},
				{"type": "image_url", "image_url": map[string]any{
					"url": "data:" + ct + ";base64," + data,
				}},
			},
		}
		return []llm.Message{msg}, nil
	}
}
