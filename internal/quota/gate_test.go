package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

// memRepo mimics the store's atomic conditional update with a mutex.
type memRepo struct {
	mu       sync.Mutex
	counters map[string]*entity.QuotaCounter
	remarks  map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		counters: map[string]*entity.QuotaCounter{},
		remarks:  map[string]string{},
	}
}

func key(userID uuid.UUID, qt entity.QuotaType) string {
	return userID.String() + "/" + string(qt)
}

func (m *memRepo) seed(userID uuid.UUID, qt entity.QuotaType, monthLimit, rawLimit, used int, period string) {
	m.counters[key(userID, qt)] = &entity.QuotaCounter{
		UserID: userID, MonthLimit: monthLimit, RawLimit: rawLimit, Used: used, Period: period,
	}
}

func (m *memRepo) TryIncrement(_ context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) (entity.QuotaCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key(userID, qt)]
	if !ok {
		return entity.QuotaCounter{}, false, common.ErrNotFound
	}
	if c.Period != period {
		c.Period = period
		c.Used = 0
	}
	if c.Used+n > c.Limit() {
		return *c, false, nil
	}
	c.Used += n
	return *c, true, nil
}

func (m *memRepo) Decrement(_ context.Context, userID uuid.UUID, qt entity.QuotaType, period string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key(userID, qt)]
	if !ok {
		return common.ErrNotFound
	}
	if c.Period == period && c.Used >= n {
		c.Used -= n
	}
	return nil
}

func (m *memRepo) SetRemark(_ context.Context, userID uuid.UUID, qt entity.QuotaType, remark string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remarks[key(userID, qt)] = remark
	return nil
}

func TestAdmit_AllowsUpToLimit(t *testing.T) {
	repo := newMemRepo()
	user := uuid.New()
	repo.seed(user, entity.QuotaReceipts, 2, 1, 0, CurrentPeriod(time.Now()))
	g := NewGate(repo, nil)

	for i := 1; i <= 3; i++ {
		d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Used)
		assert.Equal(t, 3, d.Limit)
	}

	d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Used)
	assert.Equal(t, DeniedRemark, repo.remarks[key(user, entity.QuotaReceipts)])
}

func TestAdmit_ConcurrentNeverOversubscribes(t *testing.T) {
	const limit = 5
	repo := newMemRepo()
	user := uuid.New()
	repo.seed(user, entity.QuotaReceipts, limit, 0, 0, CurrentPeriod(time.Now()))
	g := NewGate(repo, nil)

	var wg sync.WaitGroup
	allowed := make(chan bool, limit+1)
	for i := 0; i < limit+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
			require.NoError(t, err)
			allowed <- d.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	passes := 0
	for ok := range allowed {
		if ok {
			passes++
		}
	}
	assert.Equal(t, limit, passes, "exactly N of N+1 concurrent attempts admitted")
}

func TestAdmit_PeriodRollover(t *testing.T) {
	repo := newMemRepo()
	user := uuid.New()
	repo.seed(user, entity.QuotaReceipts, 3, 0, 3, "2025-07") // exhausted last month
	g := NewGate(repo, nil)
	g.now = func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) }

	d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "new period starts at zero, prior overflow never carries forward")
	assert.Equal(t, 1, d.Used)
}

func TestAdmit_NoEarlyResetMidPeriod(t *testing.T) {
	repo := newMemRepo()
	user := uuid.New()
	now := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	repo.seed(user, entity.QuotaReceipts, 3, 0, 3, CurrentPeriod(now))
	g := NewGate(repo, nil)
	g.now = func() time.Time { return now }

	d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAdmit_UnknownUser(t *testing.T) {
	g := NewGate(newMemRepo(), nil)
	_, err := g.Admit(context.Background(), uuid.New(), entity.QuotaReceipts)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRefund(t *testing.T) {
	repo := newMemRepo()
	user := uuid.New()
	repo.seed(user, entity.QuotaReceipts, 5, 0, 0, CurrentPeriod(time.Now()))
	g := NewGate(repo, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
		require.NoError(t, err)
	}
	require.NoError(t, g.Refund(context.Background(), user, entity.QuotaReceipts, 2))

	d, err := g.Admit(context.Background(), user, entity.QuotaReceipts)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Used)
}
