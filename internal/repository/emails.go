package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

// EmailRepository stores relay metadata for documents that arrived by email.
type EmailRepository interface {
	Insert(ctx context.Context, rec *entity.EmailRecord) error
	GetByReceiptID(ctx context.Context, userID, id uuid.UUID) (*entity.EmailRecord, error)
}

type emailRepository struct {
	pool *pgxpool.Pool
}

func NewEmailRepository(pool *pgxpool.Pool) EmailRepository {
	return &emailRepository{pool: pool}
}

func (r *emailRepository) Insert(ctx context.Context, rec *entity.EmailRecord) error {
	const query = `
		INSERT INTO email_info (id, user_id, from_email, to_email, source_url, buyer, seller, invoice_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ind, create_time`
	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.UserID, rec.FromEmail, rec.ToEmail, rec.SourceURL,
		rec.Buyer, rec.Seller, rec.InvoiceDate,
	).Scan(&rec.Ind, &rec.CreateTime)
	if err != nil {
		return fmt.Errorf("%w: insert email info: %v", common.ErrStorageFault, err)
	}
	return nil
}

func (r *emailRepository) GetByReceiptID(ctx context.Context, userID, id uuid.UUID) (*entity.EmailRecord, error) {
	const query = `
		SELECT ind, id, user_id, from_email, to_email, source_url, buyer, seller, invoice_date, create_time
		FROM email_info WHERE user_id = $1 AND id = $2`
	var rec entity.EmailRecord
	err := r.pool.QueryRow(ctx, query, userID, id).Scan(
		&rec.Ind, &rec.ID, &rec.UserID, &rec.FromEmail, &rec.ToEmail,
		&rec.SourceURL, &rec.Buyer, &rec.Seller, &rec.InvoiceDate, &rec.CreateTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get email info: %v", common.ErrStorageFault, err)
	}
	return &rec, nil
}
