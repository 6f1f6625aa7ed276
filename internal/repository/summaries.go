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

// SummaryRepository stores the output of aggregation passes. Rows are
// append-only; the only mutation is deletion.
type SummaryRepository interface {
	Insert(ctx context.Context, rec *entity.SummaryRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.SummaryRecord, error)
	// Delete removes the row and returns its (encrypted) archive key so the
	// caller can clean up the stored archive.
	Delete(ctx context.Context, userID uuid.UUID, id int64) (archiveKey string, err error)
}

type summaryRepository struct {
	pool *pgxpool.Pool
}

func NewSummaryRepository(pool *pgxpool.Pool) SummaryRepository {
	return &summaryRepository{pool: pool}
}

func (r *summaryRepository) Insert(ctx context.Context, rec *entity.SummaryRecord) error {
	const query = `
		INSERT INTO summary_records (user_id, title, summary_content, archive_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, create_time`
	err := r.pool.QueryRow(ctx, query,
		rec.UserID, rec.Title, rec.SummaryContent, rec.ArchiveKey,
	).Scan(&rec.ID, &rec.CreateTime)
	if err != nil {
		return fmt.Errorf("%w: insert summary: %v", common.ErrStorageFault, err)
	}
	return nil
}

func (r *summaryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.SummaryRecord, error) {
	const query = `
		SELECT id, user_id, title, summary_content, archive_key, create_time
		FROM summary_records WHERE user_id = $1 ORDER BY create_time DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list summaries: %v", common.ErrStorageFault, err)
	}
	defer rows.Close()

	var out []entity.SummaryRecord
	for rows.Next() {
		var rec entity.SummaryRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.SummaryContent,
			&rec.ArchiveKey, &rec.CreateTime); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", common.ErrStorageFault, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate summaries: %v", common.ErrStorageFault, err)
	}
	return out, nil
}

func (r *summaryRepository) Delete(ctx context.Context, userID uuid.UUID, id int64) (string, error) {
	const query = `DELETE FROM summary_records WHERE user_id = $1 AND id = $2 RETURNING archive_key`
	var key string
	err := r.pool.QueryRow(ctx, query, userID, id).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: delete summary: %v", common.ErrStorageFault, err)
	}
	return key, nil
}
