// Package pipeline drives one document from raw bytes to an encrypted,
// deduplicated row: quota admission, object upload, OCR, field extraction,
// encryption, persistence. Batches run siblings in isolation — one bad
// document never sinks the rest.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/dedupe"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/fields"
	"github.com/zhangjing-777/receipt-processing-center/internal/ingest"
	"github.com/zhangjing-777/receipt-processing-center/internal/quota"
	"github.com/zhangjing-777/receipt-processing-center/internal/repository"
	"github.com/zhangjing-777/receipt-processing-center/internal/storage"
)

// State is where a document currently sits in its lifecycle. Transitions
// only move forward; Rejected is terminal from any state.
type State string

const (
	StateReceived        State = "received"
	StateQuotaChecked    State = "quota_checked"
	StateTextExtracted   State = "text_extracted"
	StateFieldsExtracted State = "fields_extracted"
	StateEncrypted       State = "encrypted"
	StateDeduplicated    State = "deduplicated"
	StatePersisted       State = "persisted"
	StateRejected        State = "rejected"
)

// Reason says why a document was rejected.
type Reason string

const (
	ReasonQuotaExceeded    Reason = "quota_exceeded"
	ReasonOCRFailed        Reason = "ocr_failed"
	ReasonExtractionFailed Reason = "extraction_failed"
	ReasonStorageFailed    Reason = "storage_failed"
	// ReasonInternalError marks documents that hit a fault the batch runner
	// contained on the caller's behalf, such as an encryption failure.
	ReasonInternalError Reason = "internal_error"
)

// Result is the per-document outcome reported to the caller. RecordID is a
// pointer so rejected documents carry no record_id in the audit row instead
// of a zero UUID.
type Result struct {
	Filename  string     `json:"filename"`
	RecordID  *uuid.UUID `json:"record_id,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
	State     State      `json:"state"`
	Reason    Reason     `json:"reason,omitempty"`
}

// BatchSummary is the aggregate outcome of one submission. Partial failure
// is normal operation, never a batch-level error.
type BatchSummary struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

// Admitter is the quota surface the pipeline consumes.
type Admitter interface {
	Admit(ctx context.Context, userID uuid.UUID, qt entity.QuotaType) (quota.Decision, error)
	Refund(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, n int) error
}

// TextExtractor turns document bytes into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, doc ingest.Document) (string, error)
}

// FieldExtractor turns raw text into structured invoice fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, rawText string) (fields.InvoiceFields, []byte, error)
}

// Pipeline wires the stages together.
type Pipeline struct {
	gate        Admitter
	store       storage.ObjectStore
	ocr         TextExtractor
	fields      FieldExtractor
	codec       *cryptobox.Codec
	receipts    repository.ReceiptRepository
	emails      repository.EmailRepository
	uploads     repository.UploadResultRepository
	maxParallel int
	now         func() time.Time
	log         *slog.Logger
}

// New builds a Pipeline; a nil logger falls back to slog.Default().
func New(
	gate Admitter,
	store storage.ObjectStore,
	textExtractor TextExtractor,
	fieldExtractor FieldExtractor,
	codec *cryptobox.Codec,
	receipts repository.ReceiptRepository,
	emails repository.EmailRepository,
	uploads repository.UploadResultRepository,
	maxParallel int,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Pipeline{
		gate:        gate,
		store:       store,
		ocr:         textExtractor,
		fields:      fieldExtractor,
		codec:       codec,
		receipts:    receipts,
		emails:      emails,
		uploads:     uploads,
		maxParallel: maxParallel,
		now:         time.Now,
		log:         logger,
	}
}

func rejected(res Result, reason Reason) Result {
	res.State = StateRejected
	res.Reason = reason
	return res
}

// Process runs one document through the full lifecycle. Rejections are
// reported in the Result; only faults the caller cannot act on per-document
// (encryption faults, quota store faults) come back as errors.
func (p *Pipeline) Process(ctx context.Context, userID uuid.UUID, doc ingest.Document) (Result, error) {
	res := Result{Filename: doc.Filename, State: StateReceived}
	p.log.Info("pipeline.doc.start", "user_id", userID, "filename", doc.Filename, "bytes", len(doc.Bytes))

	decision, err := p.gate.Admit(ctx, userID, entity.QuotaReceipts)
	if err != nil {
		return res, err
	}
	if !decision.Allowed {
		p.log.Info("pipeline.quota.denied", "user_id", userID, "filename", doc.Filename,
			"used", decision.Used, "limit", decision.Limit)
		return rejected(res, ReasonQuotaExceeded), nil
	}
	res.State = StateQuotaChecked

	// The quota slot is spent. From here the document runs to completion
	// even if the submitting request goes away.
	ctx = context.WithoutCancel(ctx)

	key := storage.DocumentKey(userID, doc.Filename, p.now())
	if err := p.store.Put(ctx, key, doc.Bytes, doc.ContentType); err != nil {
		p.log.Error("pipeline.storage.failed", "filename", doc.Filename, "key", key, "error", err)
		p.refund(ctx, userID, doc.Filename)
		return rejected(res, ReasonStorageFailed), nil
	}

	rawText, err := p.ocr.Extract(ctx, doc)
	if err != nil {
		p.log.Warn("pipeline.ocr.failed", "filename", doc.Filename, "error", err)
		if errors.Is(err, common.ErrUnreadableInput) {
			// Rejected before any model spend.
			p.refund(ctx, userID, doc.Filename)
		}
		return rejected(res, ReasonOCRFailed), nil
	}
	res.State = StateTextExtracted

	fl, _, err := p.fields.ExtractFields(ctx, rawText)
	if err != nil {
		p.log.Warn("pipeline.fields.failed", "filename", doc.Filename, "error", err)
		return rejected(res, ReasonExtractionFailed), nil
	}
	res.State = StateFieldsExtracted

	invoiceDate := dedupe.NormalizeDate(fl.InvoiceDate)
	if invoiceDate == "" {
		invoiceDate = fl.InvoiceDate
	}
	hashID := dedupe.Fingerprint(userID.String(), dedupe.Canonical{
		Total:         fl.Total,
		Buyer:         fl.Buyer,
		Seller:        fl.Seller,
		InvoiceDate:   fl.InvoiceDate,
		InvoiceNumber: fl.InvoiceNumber,
	})

	// Plaintext copies survive for the relay-metadata row; rec is
	// ciphertext after EncryptReceipt.
	buyer, seller := fl.Buyer, fl.Seller

	rec := entity.ReceiptRecord{
		ID:            uuid.New(),
		UserID:        userID,
		Buyer:         fl.Buyer,
		Seller:        fl.Seller,
		InvoiceNumber: fl.InvoiceNumber,
		InvoiceDate:   invoiceDate,
		Category:      fl.Category,
		Total:         fl.Total,
		Currency:      fl.Currency,
		Address:       fl.Address,
		FileURL:       key,
		OriginalInfo:  doc.OriginalInfo,
		OCRText:       rawText,
		HashID:        hashID,
	}

	if err := p.codec.EncryptReceipt(&rec); err != nil {
		return res, fmt.Errorf("encrypt receipt %s: %w", doc.Filename, err)
	}
	res.State = StateEncrypted

	dup, err := p.receipts.Insert(ctx, &rec)
	if err != nil {
		p.log.Error("pipeline.persist.failed", "filename", doc.Filename, "error", err)
		return rejected(res, ReasonStorageFailed), nil
	}
	res.State = StateDeduplicated
	res.RecordID = &rec.ID
	res.Duplicate = dup

	if doc.Email != nil && !dup {
		if err := p.persistEmailInfo(ctx, userID, rec.ID, doc, buyer, seller, invoiceDate); err != nil {
			if errors.Is(err, common.ErrEncryptionFault) {
				return res, err
			}
			// The receipt row is already durable; relay metadata is best effort.
			p.log.Warn("pipeline.email.persist_failed", "record_id", rec.ID, "error", err)
		}
	}

	res.State = StatePersisted
	p.log.Info("pipeline.doc.persisted",
		"user_id", userID, "filename", doc.Filename, "record_id", rec.ID, "duplicate", dup)
	return res, nil
}

func (p *Pipeline) persistEmailInfo(ctx context.Context, userID, recordID uuid.UUID, doc ingest.Document, buyer, seller, invoiceDate string) error {
	em := entity.EmailRecord{
		ID:          recordID,
		UserID:      userID,
		FromEmail:   doc.Email.FromEmail,
		ToEmail:     doc.Email.ToEmail,
		SourceURL:   doc.Email.SourceURL,
		Buyer:       buyer,
		Seller:      seller,
		InvoiceDate: invoiceDate,
	}
	if err := p.codec.EncryptEmail(&em); err != nil {
		return err
	}
	return p.emails.Insert(ctx, &em)
}

func (p *Pipeline) refund(ctx context.Context, userID uuid.UUID, filename string) {
	if err := p.gate.Refund(ctx, userID, entity.QuotaReceipts, 1); err != nil {
		p.log.Warn("pipeline.quota.refund_failed", "user_id", userID, "filename", filename, "error", err)
	}
}

// ProcessBatch runs docs with bounded parallelism. Sibling documents are
// isolated: any per-document fault is contained and recorded in that
// document's result. The summary plus an audit row always come back; the
// only batch-level failure is a context/infrastructure fault before any
// work starts.
func (p *Pipeline) ProcessBatch(ctx context.Context, userID uuid.UUID, docs []ingest.Document) (BatchSummary, error) {
	p.log.Info("pipeline.batch.start", "user_id", userID, "docs", len(docs), "max_parallel", p.maxParallel)

	results := make([]Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallel)

	for i, doc := range docs {
		g.Go(func() error {
			res, err := p.Process(gctx, userID, doc)
			if err != nil {
				p.log.Error("pipeline.doc.fatal", "filename", doc.Filename, "error", err)
				res = rejected(res, ReasonInternalError)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; faults land in results

	summary := BatchSummary{Results: results}
	for _, r := range results {
		if r.State == StatePersisted {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if payload, err := json.Marshal(summary); err == nil {
		if err := p.uploads.Insert(context.WithoutCancel(ctx), userID, payload); err != nil {
			p.log.Warn("pipeline.batch.audit_failed", "user_id", userID, "error", err)
		}
	}

	p.log.Info("pipeline.batch.done",
		"user_id", userID, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}
