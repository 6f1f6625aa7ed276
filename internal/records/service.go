// Package records is the read/update/delete surface over stored receipts
// and summaries: rows are decrypted on the way out, field updates are
// re-encrypted on the way in, deletes clean up the stored objects too.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/repository"
	"github.com/zhangjing-777/receipt-processing-center/internal/storage"
)

// encryptedReceiptColumns are the updatable columns whose values must be
// ciphertext at rest. Must stay in sync with the codec's receipt field set.
var encryptedReceiptColumns = map[string]bool{
	"buyer":          true,
	"seller":         true,
	"invoice_number": true,
	"address":        true,
}

// plaintextReceiptColumns are updatable columns stored as-is (they carry the
// grouping and arithmetic surface).
var plaintextReceiptColumns = map[string]bool{
	"invoice_date": true,
	"category":     true,
	"total":        true,
	"currency":     true,
}

// Service exposes record management on top of the repositories.
type Service struct {
	receipts  repository.ReceiptRepository
	summaries repository.SummaryRepository
	store     storage.ObjectStore
	codec     *cryptobox.Codec
	urlTTL    time.Duration
	log       *slog.Logger
}

// NewService builds a Service; a nil logger falls back to slog.Default().
func NewService(
	receipts repository.ReceiptRepository,
	summaries repository.SummaryRepository,
	store storage.ObjectStore,
	codec *cryptobox.Codec,
	urlTTL time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &Service{
		receipts:  receipts,
		summaries: summaries,
		store:     store,
		codec:     codec,
		urlTTL:    urlTTL,
		log:       logger,
	}
}

// ListReceipts returns the user's decrypted records, newest first,
// optionally bounded by creation time.
func (s *Service) ListReceipts(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.ReceiptRecord, error) {
	recs, err := s.receipts.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if err := s.codec.DecryptReceipt(&recs[i]); err != nil {
			return nil, fmt.Errorf("decrypt record %s: %w", recs[i].ID, err)
		}
	}
	return recs, nil
}

// GetReceipt returns one decrypted record.
func (s *Service) GetReceipt(ctx context.Context, userID, id uuid.UUID) (*entity.ReceiptRecord, error) {
	rec, err := s.receipts.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.codec.DecryptReceipt(rec); err != nil {
		return nil, fmt.Errorf("decrypt record %s: %w", rec.ID, err)
	}
	return rec, nil
}

// UpdateReceiptField overwrites one field with a plaintext value, encrypting
// it first when the column is sensitive. Unknown or immutable fields are
// rejected.
func (s *Service) UpdateReceiptField(ctx context.Context, userID, id uuid.UUID, field, value string) error {
	switch {
	case encryptedReceiptColumns[field]:
		enc, err := s.codec.Encrypt(value)
		if err != nil {
			return err
		}
		value = enc
	case plaintextReceiptColumns[field]:
		// stored as-is
	default:
		return fmt.Errorf("%w: field %q is not updatable", common.ErrInvalidInput, field)
	}

	if err := s.receipts.UpdateField(ctx, userID, id, field, value); err != nil {
		return err
	}
	s.log.Info("records.receipt.updated", "user_id", userID, "record_id", id, "field", field)
	return nil
}

// DeleteReceipt removes the row and then the stored original. Object cleanup
// is best effort once the row is gone.
func (s *Service) DeleteReceipt(ctx context.Context, userID, id uuid.UUID) error {
	encKey, err := s.receipts.Delete(ctx, userID, id)
	if err != nil {
		return err
	}

	key, err := s.codec.Decrypt(encKey)
	if err != nil {
		s.log.Warn("records.receipt.object_key_unreadable", "record_id", id, "error", err)
		return nil
	}
	if key != "" {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("records.receipt.object_delete_failed", "record_id", id, "key", key, "error", err)
		}
	}
	s.log.Info("records.receipt.deleted", "user_id", userID, "record_id", id)
	return nil
}

// SummaryItem is one stored summary with a fresh signed download link.
type SummaryItem struct {
	Record      entity.SummaryRecord
	DownloadURL string
}

// ListSummaries returns the user's decrypted summaries, each with a
// time-limited download link for its archive.
func (s *Service) ListSummaries(ctx context.Context, userID uuid.UUID) ([]SummaryItem, error) {
	rows, err := s.summaries.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]SummaryItem, 0, len(rows))
	for i := range rows {
		if err := s.codec.DecryptSummary(&rows[i]); err != nil {
			return nil, fmt.Errorf("decrypt summary %d: %w", rows[i].ID, err)
		}
		item := SummaryItem{Record: rows[i]}
		if rows[i].ArchiveKey != "" {
			url, err := s.store.SignedURL(ctx, rows[i].ArchiveKey, s.urlTTL)
			if err != nil {
				s.log.Warn("records.summary.sign_failed", "summary_id", rows[i].ID, "error", err)
			} else {
				item.DownloadURL = url
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteSummary removes the row and then its archive, best effort.
func (s *Service) DeleteSummary(ctx context.Context, userID uuid.UUID, id int64) error {
	encKey, err := s.summaries.Delete(ctx, userID, id)
	if err != nil {
		return err
	}

	key, err := s.codec.Decrypt(encKey)
	if err != nil {
		s.log.Warn("records.summary.archive_key_unreadable", "summary_id", id, "error", err)
		return nil
	}
	if key != "" {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("records.summary.archive_delete_failed", "summary_id", id, "key", key, "error", err)
		}
	}
	s.log.Info("records.summary.deleted", "user_id", userID, "summary_id", id)
	return nil
}
