// Package app wires the full processing stack from configuration: database,
// migrations, object storage, model clients, and the services built on them.
// Both binaries start here.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhangjing-777/receipt-processing-center/internal/config"
	"github.com/zhangjing-777/receipt-processing-center/internal/cryptobox"
	"github.com/zhangjing-777/receipt-processing-center/internal/export"
	"github.com/zhangjing-777/receipt-processing-center/internal/fields"
	"github.com/zhangjing-777/receipt-processing-center/internal/llm"
	"github.com/zhangjing-777/receipt-processing-center/internal/ocr"
	"github.com/zhangjing-777/receipt-processing-center/internal/pipeline"
	"github.com/zhangjing-777/receipt-processing-center/internal/quota"
	"github.com/zhangjing-777/receipt-processing-center/internal/records"
	"github.com/zhangjing-777/receipt-processing-center/internal/repository"
	"github.com/zhangjing-777/receipt-processing-center/internal/storage"
	"github.com/zhangjing-777/receipt-processing-center/internal/summary"
)

// App holds the assembled services. The transport layer (an external
// collaborator) calls these directly.
type App struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Codec      *cryptobox.Codec
	Store      *storage.S3Store
	Receipts   repository.ReceiptRepository
	Quota      *quota.Gate
	Pipeline   *pipeline.Pipeline
	Aggregator *summary.Aggregator
	Packager   *export.Packager
	Records    *records.Service

	log *slog.Logger
}

// New opens the backing stores, applies migrations and assembles every
// service. A nil logger falls back to slog.Default().
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	codec, err := cryptobox.New(cfg.Crypto.Secret)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store, err := storage.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	chat := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	receipts := repository.NewReceiptRepository(pool)
	emails := repository.NewEmailRepository(pool)
	summaries := repository.NewSummaryRepository(pool)
	uploads := repository.NewUploadResultRepository(pool)
	gate := quota.NewGate(repository.NewQuotaRepository(pool), logger)

	pipe := pipeline.New(
		gate,
		store,
		ocr.NewExtractor(chat, cfg.LLM.VisionModel, cfg.LLM.FallbackModel, logger),
		fields.NewExtractor(chat, cfg.LLM.TextModel, logger),
		codec,
		receipts,
		emails,
		uploads,
		cfg.Quota.MaxParallelDocs,
		logger,
	)

	return &App{
		Config:     cfg,
		Pool:       pool,
		Codec:      codec,
		Store:      store,
		Receipts:   receipts,
		Quota:      gate,
		Pipeline:   pipe,
		Aggregator: summary.NewAggregator(codec, chat, cfg.LLM.TextModel, logger),
		Packager:   export.NewPackager(store, codec, summaries, cfg.Quota.MaxParallelGets, cfg.Storage.SignedURLTTL, logger),
		Records:    records.NewService(receipts, summaries, store, codec, cfg.Storage.SignedURLTTL, logger),
		log:        logger,
	}, nil
}

// Close releases the backing connections.
func (a *App) Close() {
	repository.Close(a.Pool, a.log)
}
