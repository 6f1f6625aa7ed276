package entity

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptRecord is one processed document. Sensitive fields (buyer, seller,
// invoice number, address, file URL, original info, OCR text) hold ciphertext
// once the record passes through the encryption codec; the repository only
// accepts fully encrypted records.
type ReceiptRecord struct {
	Ind           int64     // assigned by the store at persistence time
	ID            uuid.UUID // immutable
	UserID        uuid.UUID
	Buyer         string
	Seller        string
	InvoiceNumber string
	InvoiceDate   string // YYYY-MM-DD
	Category      string
	Total         string // decimal string, no symbols
	Currency      string // ISO 4217
	Address       string
	FileURL       string
	OriginalInfo  string
	OCRText       string
	HashID        string
	CreateTime    time.Time // set once at persistence
}
