package entity

import (
	"time"

	"github.com/google/uuid"
)

// QuotaType selects which usage counter a request is billed against.
type QuotaType string

const (
	// QuotaReceipts meters document processing (one unit per document).
	QuotaReceipts QuotaType = "receipts"
	// QuotaRequests meters summary/export requests.
	QuotaRequests QuotaType = "requests"
)

// QuotaCounter is the per-user usage row for one quota type. Used never
// exceeds MonthLimit+RawLimit within a period; a new period starts at zero
// lazily on first access.
type QuotaCounter struct {
	UserID     uuid.UUID
	MonthLimit int
	RawLimit   int // secondary allowance on top of the monthly pool
	Used       int
	Period     string // "YYYY-MM" in UTC
	Remark     string
	CreatedAt  time.Time
}

// Limit is the total number of slots available in one period.
func (q QuotaCounter) Limit() int {
	return q.MonthLimit + q.RawLimit
}
