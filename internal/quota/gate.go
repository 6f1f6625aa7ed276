// Package quota is the admission gate checked before any costly extraction
// work. The check-and-increment is a single atomic operation at the store,
// so concurrent submissions can never jointly exceed the limit.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

// DeniedRemark is written to the user's counter row when they hit the limit.
const DeniedRemark = "You have reached your usage limit for this period. " +
	"Please try next period or upgrade your plan for more quota."

// Decision is the outcome of one admission attempt. Denied is a normal
// value, not an error.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
}

// Repository is the persisted-counter collaborator. TryIncrement must
// perform the lazy period reset and the increment-if-below-limit as one
// atomic store operation and report the resulting counter state.
type Repository interface {
	TryIncrement(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) (entity.QuotaCounter, bool, error)
	Decrement(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) error
	SetRemark(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, remark string) error
}

// CurrentPeriod renders the quota period identifier for t: "YYYY-MM" in UTC.
func CurrentPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Gate performs admission control against the persisted counters.
type Gate struct {
	repo Repository
	now  func() time.Time
	log  *slog.Logger
}

// NewGate builds a Gate; a nil logger falls back to slog.Default().
func NewGate(repo Repository, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{repo: repo, now: time.Now, log: logger}
}

// Admit checks and consumes one slot for (userID, qt) in the current period.
// On rollover the new period starts at zero regardless of the prior count;
// mid-period the counter is never reset early.
func (g *Gate) Admit(ctx context.Context, userID uuid.UUID, qt entity.QuotaType) (Decision, error) {
	period := CurrentPeriod(g.now())

	counter, ok, err := g.repo.TryIncrement(ctx, userID, qt, period, 1)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		g.log.Info("quota.admit.denied",
			"user_id", userID, "quota_type", string(qt),
			"used", counter.Used, "limit", counter.Limit(), "period", period)
		if err := g.repo.SetRemark(ctx, userID, qt, DeniedRemark); err != nil {
			g.log.Warn("quota.remark.write_failed", "user_id", userID, "error", err)
		}
		return Decision{Allowed: false, Used: counter.Used, Limit: counter.Limit()}, nil
	}

	g.log.Info("quota.admit.ok",
		"user_id", userID, "quota_type", string(qt),
		"used", counter.Used, "limit", counter.Limit(), "period", period)
	return Decision{Allowed: true, Used: counter.Used, Limit: counter.Limit()}, nil
}

// Refund gives back n slots consumed in the current period, for documents
// rejected before any costly work ran. Best-effort semantics are the
// caller's choice; errors are returned as-is.
func (g *Gate) Refund(ctx context.Context, userID uuid.UUID, qt entity.QuotaType, n int) error {
	if n <= 0 {
		return nil
	}
	return g.repo.Decrement(ctx, userID, qt, CurrentPeriod(g.now()), n)
}
