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

// QuotaRepository persists per-user usage counters. TryIncrement performs
// the lazy period reset and the conditional increment in one UPDATE, so
// concurrent callers can never jointly exceed the limit.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

// Table names are fixed per quota type; qt never reaches the SQL text as
// user-controlled input.
func quotaTable(qt entity.QuotaType) (string, error) {
	switch qt {
	case entity.QuotaReceipts:
		return "usage_quota_receipts", nil
	case entity.QuotaRequests:
		return "usage_quota_requests", nil
	default:
		return "", fmt.Errorf("%w: unknown quota type %q", common.ErrInvalidInput, qt)
	}
}

func (r *QuotaRepository) TryIncrement(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) (entity.QuotaCounter, bool, error) {
	table, err := quotaTable(qt)
	if err != nil {
		return entity.QuotaCounter{}, false, err
	}

	// A stale period means the stored count belongs to a previous month and
	// resets to zero before the increment is applied.
	query := fmt.Sprintf(`
		UPDATE %s SET
			used_month = CASE WHEN period <> $2 THEN $3 ELSE used_month + $3 END,
			period = $2
		WHERE user_id = $1
		  AND (CASE WHEN period <> $2 THEN 0 ELSE used_month END) + $3 <= month_limit + raw_limit
		RETURNING used_month, month_limit, raw_limit, period, remark, created_at`, table)

	counter := entity.QuotaCounter{UserID: userID}
	err = r.pool.QueryRow(ctx, query, userID, period, n).Scan(
		&counter.Used, &counter.MonthLimit, &counter.RawLimit,
		&counter.Period, &counter.Remark, &counter.CreatedAt,
	)
	if err == nil {
		return counter, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return entity.QuotaCounter{}, false, fmt.Errorf("%w: quota increment: %v", common.ErrStorageFault, err)
	}

	// Either the user has no counter row, or the limit was hit. Read the row
	// to tell the two apart and report current usage.
	selectQuery := fmt.Sprintf(`
		SELECT used_month, month_limit, raw_limit, period, remark, created_at
		FROM %s WHERE user_id = $1`, table)
	err = r.pool.QueryRow(ctx, selectQuery, userID).Scan(
		&counter.Used, &counter.MonthLimit, &counter.RawLimit,
		&counter.Period, &counter.Remark, &counter.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.QuotaCounter{}, false, fmt.Errorf("%w: no quota configured for user %s", common.ErrNotFound, userID)
	}
	if err != nil {
		return entity.QuotaCounter{}, false, fmt.Errorf("%w: quota lookup: %v", common.ErrStorageFault, err)
	}
	if counter.Period != period {
		// Denied on a fresh period only happens with a zero limit; present
		// the usage the new period would start from.
		counter.Used = 0
		counter.Period = period
	}
	return counter, false, nil
}

func (r *QuotaRepository) Decrement(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) error {
	table, err := quotaTable(qt)
	if err != nil {
		return err
	}
	// Refunds only apply inside the period the slots were taken from.
	query := fmt.Sprintf(`
		UPDATE %s SET used_month = GREATEST(used_month - $3, 0)
		WHERE user_id = $1 AND period = $2`, table)
	if _, err := r.pool.Exec(ctx, query, userID, period, n); err != nil {
		return fmt.Errorf("%w: quota decrement: %v", common.ErrStorageFault, err)
	}
	return nil
}

func (r *QuotaRepository) SetRemark(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, remark string) error {
	table, err := quotaTable(qt)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET remark = $2 WHERE user_id = $1`, table)
	if _, err := r.pool.Exec(ctx, query, userID, remark); err != nil {
		return fmt.Errorf("%w: quota remark: %v", common.ErrStorageFault, err)
	}
	return nil
}
