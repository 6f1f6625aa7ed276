package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
)

// UploadResultRepository keeps one audit row per batch submission: the full
// per-document outcome list as JSON, for later inspection.
type UploadResultRepository interface {
	Insert(ctx context.Context, userID uuid.UUID, payload []byte) error
}

type uploadResultRepository struct {
	pool *pgxpool.Pool
}

func NewUploadResultRepository(pool *pgxpool.Pool) UploadResultRepository {
	return &uploadResultRepository{pool: pool}
}

func (r *uploadResultRepository) Insert(ctx context.Context, userID uuid.UUID, payload []byte) error {
	const query = `INSERT INTO upload_results (user_id, result) VALUES ($1, $2)`
	if _, err := r.pool.Exec(ctx, query, userID, payload); err != nil {
		return fmt.Errorf("%w: insert upload result: %v", common.ErrStorageFault, err)
	}
	return nil
}
