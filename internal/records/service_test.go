package records

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
)

type memReceipts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.ReceiptRecord
}

func newMemReceipts() *memReceipts {
	return &memReceipts{rows: map[uuid.UUID]*entity.ReceiptRecord{}}
}

func (m *memReceipts) Insert(_ context.Context, rec *entity.ReceiptRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rows[rec.ID] = &cp
	return false, nil
}

func (m *memReceipts) GetByID(_ context.Context, userID, id uuid.UUID) (*entity.ReceiptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok || rec.UserID != userID {
		return nil, common.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memReceipts) ListByUser(_ context.Context, userID uuid.UUID, _, _ *time.Time) ([]entity.ReceiptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.ReceiptRecord
	for _, rec := range m.rows {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memReceipts) ListByIDs(context.Context, uuid.UUID, []uuid.UUID) ([]entity.ReceiptRecord, error) {
	return nil, nil
}

func (m *memReceipts) UpdateField(_ context.Context, userID, id uuid.UUID, column, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok || rec.UserID != userID {
		return common.ErrNotFound
	}
	switch column {
	case "buyer":
		rec.Buyer = value
	case "seller":
		rec.Seller = value
	case "invoice_number":
		rec.InvoiceNumber = value
	case "invoice_date":
		rec.InvoiceDate = value
	case "category":
		rec.Category = value
	case "total":
		rec.Total = value
	case "currency":
		rec.Currency = value
	case "address":
		rec.Address = value
	default:
		return common.ErrInvalidInput
	}
	return nil
}

func (m *memReceipts) Delete(_ context.Context, userID, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok || rec.UserID != userID {
		return "", common.ErrNotFound
	}
	delete(m.rows, id)
	return rec.FileURL, nil
}

type memSummaries struct {
	rows map[int64]*entity.SummaryRecord
	next int64
}

func newMemSummaries() *memSummaries {
	return &memSummaries{rows: map[int64]*entity.SummaryRecord{}}
}

func (m *memSummaries) Insert(_ context.Context, rec *entity.SummaryRecord) error {
	m.next++
	rec.ID = m.next
	cp := *rec
	m.rows[rec.ID] = &cp
	return nil
}

func (m *memSummaries) ListByUser(_ context.Context, userID uuid.UUID) ([]entity.SummaryRecord, error) {
	var out []entity.SummaryRecord
	for _, rec := range m.rows {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memSummaries) Delete(_ context.Context, userID uuid.UUID, id int64) (string, error) {
	rec, ok := m.rows[id]
	if !ok || rec.UserID != userID {
		return "", common.ErrNotFound
	}
	delete(m.rows, id)
	return rec.ArchiveKey, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type rig struct {
	codec     *cryptobox.Codec
	receipts  *memReceipts
	summaries *memSummaries
	store     *memStore
	svc       *Service
}

func newRig(t *testing.T) *rig {
	t.Helper()
	codec, err := cryptobox.New("records-secret")
	require.NoError(t, err)
	r := &rig{
		codec:     codec,
		receipts:  newMemReceipts(),
		summaries: newMemSummaries(),
		store:     newMemStore(),
	}
	r.svc = NewService(r.receipts, r.summaries, r.store, codec, time.Hour, nil)
	return r
}

func (r *rig) seedReceipt(t *testing.T, userID uuid.UUID, buyer, fileKey string) uuid.UUID {
	t.Helper()
	rec := entity.ReceiptRecord{
		ID: uuid.New(), UserID: userID,
		Buyer: buyer, Seller: "Vendor", Total: "10.00", Currency: "USD",
		FileURL: fileKey,
	}
	require.NoError(t, r.codec.EncryptReceipt(&rec))
	_, err := r.receipts.Insert(context.Background(), &rec)
	require.NoError(t, err)
	return rec.ID
}

func TestGetReceipt_DecryptsOnRead(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	id := r.seedReceipt(t, user, "Acme Corp", "receipts/u/a.jpg")

	got, err := r.svc.GetReceipt(context.Background(), user, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Buyer)
	assert.Equal(t, "receipts/u/a.jpg", got.FileURL)
}

func TestGetReceipt_OtherUsersRecordHidden(t *testing.T) {
	r := newRig(t)
	id := r.seedReceipt(t, uuid.New(), "Acme Corp", "k")

	_, err := r.svc.GetReceipt(context.Background(), uuid.New(), id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateReceiptField_SensitiveReencrypted(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	id := r.seedReceipt(t, user, "Acme Corp", "k")

	require.NoError(t, r.svc.UpdateReceiptField(context.Background(), user, id, "buyer", "New Buyer"))

	stored := r.receipts.rows[id]
	assert.NotEqual(t, "New Buyer", stored.Buyer, "ciphertext at rest")

	got, err := r.svc.GetReceipt(context.Background(), user, id)
	require.NoError(t, err)
	assert.Equal(t, "New Buyer", got.Buyer)
}

func TestUpdateReceiptField_PlaintextStoredAsIs(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	id := r.seedReceipt(t, user, "Acme Corp", "k")

	require.NoError(t, r.svc.UpdateReceiptField(context.Background(), user, id, "total", "99.95"))
	assert.Equal(t, "99.95", r.receipts.rows[id].Total)
}

func TestUpdateReceiptField_UnknownFieldRejected(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	id := r.seedReceipt(t, user, "Acme Corp", "k")

	err := r.svc.UpdateReceiptField(context.Background(), user, id, "hash_id", "forged")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDeleteReceipt_RemovesRowAndObject(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	require.NoError(t, r.store.Put(context.Background(), "receipts/u/a.jpg", []byte("img"), ""))
	id := r.seedReceipt(t, user, "Acme Corp", "receipts/u/a.jpg")

	require.NoError(t, r.svc.DeleteReceipt(context.Background(), user, id))

	assert.Empty(t, r.receipts.rows)
	_, err := r.store.Get(context.Background(), "receipts/u/a.jpg")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSummaries_ListDecryptsAndSigns(t *testing.T) {
	r := newRig(t)
	user := uuid.New()

	rec := entity.SummaryRecord{
		UserID: user, Title: "June", SummaryContent: "narrative", ArchiveKey: "summary/u/x.zip",
	}
	require.NoError(t, r.codec.EncryptSummary(&rec))
	require.NoError(t, r.summaries.Insert(context.Background(), &rec))

	items, err := r.svc.ListSummaries(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "June", items[0].Record.Title)
	assert.Equal(t, "https://signed.example/summary/u/x.zip", items[0].DownloadURL)
}

func TestDeleteSummary_RemovesArchive(t *testing.T) {
	r := newRig(t)
	user := uuid.New()
	require.NoError(t, r.store.Put(context.Background(), "summary/u/x.zip", []byte("zip"), ""))

	rec := entity.SummaryRecord{UserID: user, Title: "June", ArchiveKey: "summary/u/x.zip"}
	require.NoError(t, r.codec.EncryptSummary(&rec))
	require.NoError(t, r.summaries.Insert(context.Background(), &rec))

	require.NoError(t, r.svc.DeleteSummary(context.Background(), user, rec.ID))
	_, err := r.store.Get(context.Background(), "summary/u/x.zip")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
