package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

// ReceiptRepository stores processed documents. Sensitive columns hold
// ciphertext; the repository never sees plaintext.
type ReceiptRepository interface {
	// Insert persists rec, or reports duplicate=true when a row with the
	// same content fingerprint already exists. On duplicate, rec.ID and
	// rec.Ind are rewritten to the existing row's identity.
	Insert(ctx context.Context, rec *entity.ReceiptRecord) (duplicate bool, err error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.ReceiptRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.ReceiptRecord, error)
	ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]entity.ReceiptRecord, error)
	// UpdateField overwrites one mutable column with an already-encrypted
	// (or plaintext, for non-sensitive columns) value.
	UpdateField(ctx context.Context, userID, id uuid.UUID, column, value string) error
	// Delete removes the row and returns its (encrypted) file_url so the
	// caller can clean up the stored object.
	Delete(ctx context.Context, userID, id uuid.UUID) (fileURL string, err error)
}

const receiptColumns = `ind, id, user_id, buyer, seller, invoice_number, invoice_date,
	category, total, currency, address, file_url, original_info, ocr_text, hash_id, create_time`

// mutableReceiptColumns are the columns UpdateField may touch. Identity,
// fingerprint and timestamps stay immutable.
var mutableReceiptColumns = map[string]bool{
	"buyer":          true,
	"seller":         true,
	"invoice_number": true,
	"invoice_date":   true,
	"category":       true,
	"total":          true,
	"currency":       true,
	"address":        true,
}

type receiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) ReceiptRepository {
	return &receiptRepository{pool: pool}
}

func (r *receiptRepository) Insert(ctx context.Context, rec *entity.ReceiptRecord) (bool, error) {
	const insert = `
		INSERT INTO receipt_items (id, user_id, buyer, seller, invoice_number, invoice_date,
			category, total, currency, address, file_url, original_info, ocr_text, hash_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hash_id) DO NOTHING
		RETURNING ind, create_time`

	err := r.pool.QueryRow(ctx, insert,
		rec.ID, rec.UserID, rec.Buyer, rec.Seller, rec.InvoiceNumber, rec.InvoiceDate,
		rec.Category, rec.Total, rec.Currency, rec.Address, rec.FileURL, rec.OriginalInfo,
		rec.OCRText, rec.HashID,
	).Scan(&rec.Ind, &rec.CreateTime)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: insert receipt: %v", common.ErrStorageFault, err)
	}

	// Fingerprint collision: surface the existing row's identity.
	const existing = `SELECT ind, id, create_time FROM receipt_items WHERE hash_id = $1`
	if err := r.pool.QueryRow(ctx, existing, rec.HashID).Scan(&rec.Ind, &rec.ID, &rec.CreateTime); err != nil {
		return false, fmt.Errorf("%w: lookup duplicate receipt: %v", common.ErrStorageFault, err)
	}
	return true, nil
}

func (r *receiptRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.ReceiptRecord, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipt_items WHERE user_id = $1 AND id = $2`
	rec, err := scanReceipt(r.pool.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get receipt: %v", common.ErrStorageFault, err)
	}
	return rec, nil
}

func (r *receiptRepository) ListByUser(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]entity.ReceiptRecord, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipt_items WHERE user_id = $1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND create_time >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND create_time < $%d", len(args))
	}
	query += " ORDER BY create_time DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list receipts: %v", common.ErrStorageFault, err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func (r *receiptRepository) ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]entity.ReceiptRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + receiptColumns + ` FROM receipt_items WHERE user_id = $1 AND id = ANY($2)`
	rows, err := r.pool.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: list receipts by id: %v", common.ErrStorageFault, err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func (r *receiptRepository) UpdateField(ctx context.Context, userID, id uuid.UUID, column, value string) error {
	if !mutableReceiptColumns[column] {
		return fmt.Errorf("%w: column %q is not updatable", common.ErrInvalidInput, column)
	}
	query := fmt.Sprintf(`UPDATE receipt_items SET %s = $1 WHERE user_id = $2 AND id = $3`, column)
	tag, err := r.pool.Exec(ctx, query, value, userID, id)
	if err != nil {
		return fmt.Errorf("%w: update receipt field: %v", common.ErrStorageFault, err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *receiptRepository) Delete(ctx context.Context, userID, id uuid.UUID) (string, error) {
	const query = `DELETE FROM receipt_items WHERE user_id = $1 AND id = $2 RETURNING file_url`
	var fileURL string
	err := r.pool.QueryRow(ctx, query, userID, id).Scan(&fileURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: delete receipt: %v", common.ErrStorageFault, err)
	}
	return fileURL, nil
}

func scanReceipt(row pgx.Row) (*entity.ReceiptRecord, error) {
	var rec entity.ReceiptRecord
	err := row.Scan(
		&rec.Ind, &rec.ID, &rec.UserID, &rec.Buyer, &rec.Seller, &rec.InvoiceNumber,
		&rec.InvoiceDate, &rec.Category, &rec.Total, &rec.Currency, &rec.Address,
		&rec.FileURL, &rec.OriginalInfo, &rec.OCRText, &rec.HashID, &rec.CreateTime,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectReceipts(rows pgx.Rows) ([]entity.ReceiptRecord, error) {
	var out []entity.ReceiptRecord
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan receipt: %v", common.ErrStorageFault, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate receipts: %v", common.ErrStorageFault, err)
	}
	return out, nil
}
