// Package export assembles a downloadable archive from an aggregation pass:
// the original documents laid out by buyer/date/category, an XLSX report,
// and a plain-text summary, uploaded to object storage behind a signed URL.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/repository"
	"github.com/zhangjing-777/receipt-processing-center/internal/storage"
	"github.com/zhangjing-777/receipt-processing-center/internal/summary"
)

// ArchiveRef points at a finished export.
type ArchiveRef struct {
	SummaryID int64
	Key       string
	SignedURL string
}

// Packager builds and stores export archives.
type Packager struct {
	store           storage.ObjectStore
	codec           *cryptobox.Codec
	summaries       repository.SummaryRepository
	maxParallelGets int
	urlTTL          time.Duration
	now             func() time.Time
	log             *slog.Logger
}

// NewPackager builds a Packager; a nil logger falls back to slog.Default().
func NewPackager(
	store storage.ObjectStore,
	codec *cryptobox.Codec,
	summaries repository.SummaryRepository,
	maxParallelGets int,
	urlTTL time.Duration,
	logger *slog.Logger,
) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallelGets <= 0 {
		maxParallelGets = 1
	}
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &Packager{
		store:           store,
		codec:           codec,
		summaries:       summaries,
		maxParallelGets: maxParallelGets,
		urlTTL:          urlTTL,
		now:             time.Now,
		log:             logger,
	}
}

// segment makes one archive path element, never empty and never
// user-controlled beyond sanitized characters.
func segment(s, fallback string) string {
	safe := storage.SanitizeFilename(s)
	if safe == "unnamed" && s == "" {
		return fallback
	}
	return safe
}

// arcname is the in-archive path for one source document:
// buyer/date/category/<recordID><ext>.
func arcname(line summary.Line) string {
	return path.Join(
		segment(line.Buyer, "unknown-buyer"),
		segment(line.InvoiceDate, "unknown-date"),
		segment(line.Category, summary.CategoryOthers),
		line.RecordID.String()+path.Ext(line.FileKey),
	)
}

// Package fetches the view's source documents with bounded parallelism,
// zips them together with the report, uploads the archive and records an
// encrypted summary row. Unfetchable sources are noted in the report, never
// fatal; storage upload or summary persistence failure is.
func (p *Packager) Package(ctx context.Context, userID uuid.UUID, view *summary.View, name string) (*ArchiveRef, error) {
	p.log.Info("export.package.start", "user_id", userID, "lines", len(view.Lines), "name", name)

	lines := make([]summary.Line, len(view.Lines))
	copy(lines, view.Lines)

	bodies := make([][]byte, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallelGets)
	for i := range lines {
		if lines[i].Omitted != "" || lines[i].FileKey == "" {
			continue
		}
		g.Go(func() error {
			body, err := p.store.Get(gctx, lines[i].FileKey)
			if err != nil {
				p.log.Warn("export.source.unavailable", "record_id", lines[i].RecordID, "error", err)
				lines[i].Omitted = "source unavailable"
				return nil
			}
			bodies[i] = body
			return nil
		})
	}
	_ = g.Wait() // fetch workers never fail the group

	reportView := *view
	reportView.Lines = lines
	report, err := BuildReport(&reportView)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, line := range lines {
		if bodies[i] == nil {
			continue
		}
		w, err := zw.Create(arcname(line))
		if err != nil {
			return nil, fmt.Errorf("export: archive entry: %w", err)
		}
		if _, err := w.Write(bodies[i]); err != nil {
			return nil, fmt.Errorf("export: archive entry: %w", err)
		}
	}
	addEntry := func(entryName string, body []byte) error {
		w, err := zw.Create(entryName)
		if err != nil {
			return fmt.Errorf("export: archive entry: %w", err)
		}
		_, err = w.Write(body)
		return err
	}
	if err := addEntry("report.xlsx", report); err != nil {
		return nil, err
	}
	if err := addEntry("summary.txt", []byte(summary.RenderText(&reportView))); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: finalize archive: %w", err)
	}

	key := storage.ArchiveKey(userID, name, p.now())
	if err := p.store.Put(ctx, key, buf.Bytes(), "application/zip"); err != nil {
		return nil, fmt.Errorf("export: upload archive: %w", err)
	}

	url, err := p.store.SignedURL(ctx, key, p.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("export: sign archive url: %w", err)
	}

	rec := entity.SummaryRecord{
		UserID:         userID,
		Title:          view.Title,
		SummaryContent: view.Narrative,
		ArchiveKey:     key,
	}
	if err := p.codec.EncryptSummary(&rec); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := p.summaries.Insert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	p.log.Info("export.package.done", "user_id", userID, "summary_id", rec.ID, "key", key)
	return &ArchiveRef{SummaryID: rec.ID, Key: key, SignedURL: url}, nil
}
