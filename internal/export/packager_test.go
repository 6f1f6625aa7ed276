package export

import (
	"archive/zip"
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/summary"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) Put(_ context.Context, key string, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeSummaries struct {
	rows []*entity.SummaryRecord
}

func (f *fakeSummaries) Insert(_ context.Context, rec *entity.SummaryRecord) error {
	rec.ID = int64(len(f.rows) + 1)
	rec.CreateTime = time.Now()
	cp := *rec
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeSummaries) ListByUser(context.Context, uuid.UUID) ([]entity.SummaryRecord, error) {
	return nil, nil
}

func (f *fakeSummaries) Delete(context.Context, uuid.UUID, int64) (string, error) {
	return "", common.ErrNotFound
}

func lineFor(buyer, date, category, fileKey string, amountMinor int64) summary.Line {
	return summary.Line{
		RecordID:    uuid.New(),
		Buyer:       buyer,
		Seller:      "Vendor",
		Category:    category,
		Currency:    "USD",
		InvoiceDate: date,
		AmountMinor: amountMinor,
		FileKey:     fileKey,
	}
}

func zipEntries(t *testing.T, body []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestPackage_ArchiveLayoutAndSummaryRow(t *testing.T) {
	codec, err := cryptobox.New("export-secret")
	require.NoError(t, err)
	store := newFakeStore()
	summaries := &fakeSummaries{}
	user := uuid.New()

	require.NoError(t, store.Put(context.Background(), "receipts/u/a.jpg", []byte("img-a"), ""))
	require.NoError(t, store.Put(context.Background(), "receipts/u/b.pdf", []byte("pdf-b"), ""))

	view := &summary.View{
		Title: "June expenses",
		Lines: []summary.Line{
			lineFor("Acme Corp", "2025-06-01", summary.CategoryTransportation, "receipts/u/a.jpg", 1000),
			lineFor("Acme Corp", "2025-06-02", summary.CategoryMeals, "receipts/u/b.pdf", 2550),
		},
		Groups: []summary.GroupTotal{
			{Buyer: "Acme Corp", Category: summary.CategoryTransportation, Currency: "USD", AmountMinor: 1000, Count: 1},
			{Buyer: "Acme Corp", Category: summary.CategoryMeals, Currency: "USD", AmountMinor: 2550, Count: 1},
		},
		BuyerTotals: []summary.BuyerTotal{{Buyer: "Acme Corp", Currency: "USD", AmountMinor: 3550}},
		Narrative:   "Acme Corp spent 35.50 USD.",
	}

	p := NewPackager(store, codec, summaries, 4, time.Hour, nil)
	ref, err := p.Package(context.Background(), user, view, "june summary")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref.Key, "summary/"+user.String()+"/"))
	assert.True(t, strings.HasSuffix(ref.Key, "/june_summary.zip"))
	assert.Equal(t, "https://signed.example/"+ref.Key, ref.SignedURL)

	archive, err := store.Get(context.Background(), ref.Key)
	require.NoError(t, err)
	names := zipEntries(t, archive)
	require.Len(t, names, 4)

	assert.Equal(t, "report.xlsx", names[len(names)-2])
	assert.Equal(t, "summary.txt", names[len(names)-1])
	assert.True(t, strings.HasPrefix(names[0], "Acme_Corp/2025-06-01/Transportation/"))
	assert.True(t, strings.HasSuffix(names[0], ".jpg"), "extension comes from the stored object, name from the record id")
	assert.True(t, strings.HasPrefix(names[1], "Acme_Corp/2025-06-02/Meals_Entertainment/"))

	require.Len(t, summaries.rows, 1)
	row := summaries.rows[0]
	assert.Equal(t, int64(1), ref.SummaryID)
	assert.NotEqual(t, "June expenses", row.Title, "summary row stored encrypted")

	decrypted := *row
	require.NoError(t, codec.DecryptSummary(&decrypted))
	assert.Equal(t, "June expenses", decrypted.Title)
	assert.Equal(t, ref.Key, decrypted.ArchiveKey)
}

func TestPackage_UnfetchableSourceOmittedNotFatal(t *testing.T) {
	codec, err := cryptobox.New("export-secret")
	require.NoError(t, err)
	store := newFakeStore()
	summaries := &fakeSummaries{}
	user := uuid.New()

	require.NoError(t, store.Put(context.Background(), "receipts/u/present.jpg", []byte("img"), ""))

	view := &summary.View{
		Title: "Partial",
		Lines: []summary.Line{
			lineFor("Acme Corp", "2025-06-01", summary.CategoryOthers, "receipts/u/present.jpg", 1000),
			lineFor("Acme Corp", "2025-06-02", summary.CategoryOthers, "receipts/u/gone.jpg", 2000),
		},
	}

	p := NewPackager(store, codec, summaries, 4, time.Hour, nil)
	ref, err := p.Package(context.Background(), user, view, "partial")
	require.NoError(t, err, "a missing source never fails the export")

	archive, err := store.Get(context.Background(), ref.Key)
	require.NoError(t, err)
	names := zipEntries(t, archive)
	require.Len(t, names, 3, "one source entry plus report and summary")

	// The report's omissions sheet names the skipped record.
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	var reportBody []byte
	for _, f := range zr.File {
		if f.Name == "report.xlsx" {
			rc, err := f.Open()
			require.NoError(t, err)
			var buf bytes.Buffer
			_, err = buf.ReadFrom(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			reportBody = buf.Bytes()
		}
	}
	require.NotEmpty(t, reportBody)

	wb, err := excelize.OpenReader(bytes.NewReader(reportBody))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Omissions")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one omitted record")
	assert.Equal(t, view.Lines[1].RecordID.String(), rows[1][0])
	assert.Equal(t, "source unavailable", rows[1][3])
}
