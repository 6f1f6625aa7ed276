package entity

import (
	"time"

	"github.com/google/uuid"
)

// SummaryRecord is the persisted output of one aggregation pass. Title,
// narrative and archive key are stored encrypted. Never mutated, only deleted.
type SummaryRecord struct {
	ID             int64
	UserID         uuid.UUID
	Title          string
	SummaryContent string
	ArchiveKey     string
	CreateTime     time.Time
}
