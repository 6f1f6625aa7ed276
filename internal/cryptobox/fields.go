package cryptobox

import (
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

// Per-entity sensitive field sets. These are the only functions repositories
// and services use to move records across the plaintext/ciphertext boundary,
// so no persistence path can leak a plaintext field.

func receiptFields(r *entity.ReceiptRecord) map[string]*string {
	return map[string]*string{
		"buyer":          &r.Buyer,
		"seller":         &r.Seller,
		"address":        &r.Address,
		"file_url":       &r.FileURL,
		"invoice_number": &r.InvoiceNumber,
		"original_info":  &r.OriginalInfo,
		"ocr":            &r.OCRText,
	}
}

func emailFields(e *entity.EmailRecord) map[string]*string {
	return map[string]*string{
		"from_email": &e.FromEmail,
		"to_email":   &e.ToEmail,
		"source_url": &e.SourceURL,
		"buyer":      &e.Buyer,
		"seller":     &e.Seller,
	}
}

func summaryFields(s *entity.SummaryRecord) map[string]*string {
	return map[string]*string{
		"summary_content": &s.SummaryContent,
		"title":           &s.Title,
		"archive_key":     &s.ArchiveKey,
	}
}

// EncryptReceipt seals all sensitive receipt fields in place.
func (c *Codec) EncryptReceipt(r *entity.ReceiptRecord) error {
	return c.EncryptAll(receiptFields(r))
}

// DecryptReceipt opens all sensitive receipt fields in place.
func (c *Codec) DecryptReceipt(r *entity.ReceiptRecord) error {
	return c.DecryptAll(receiptFields(r))
}

// EncryptEmail seals all sensitive email-metadata fields in place.
func (c *Codec) EncryptEmail(e *entity.EmailRecord) error {
	return c.EncryptAll(emailFields(e))
}

// DecryptEmail opens all sensitive email-metadata fields in place.
func (c *Codec) DecryptEmail(e *entity.EmailRecord) error {
	return c.DecryptAll(emailFields(e))
}

// EncryptSummary seals all sensitive summary fields in place.
func (c *Codec) EncryptSummary(s *entity.SummaryRecord) error {
	return c.EncryptAll(summaryFields(s))
}

// DecryptSummary opens all sensitive summary fields in place.
func (c *Codec) DecryptSummary(s *entity.SummaryRecord) error {
	return c.DecryptAll(summaryFields(s))
}
