package entity

import (
	"time"

	"github.com/google/uuid"
)

// EmailRecord is relay metadata for a document that arrived by email,
// linked 1:1 to a ReceiptRecord by shared ID. Sender, recipient, source
// location, buyer and seller are stored encrypted.
type EmailRecord struct {
	Ind         int64
	ID          uuid.UUID // same as the linked ReceiptRecord.ID
	UserID      uuid.UUID
	FromEmail   string
	ToEmail     string
	SourceURL   string
	Buyer       string
	Seller      string
	InvoiceDate string
	CreateTime  time.Time
}
