package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhangjing-777/receipt-processing-center/internal/app"
	"github.com/zhangjing-777/receipt-processing-center/internal/config"
	"github.com/zhangjing-777/receipt-processing-center/internal/entity"
	"github.com/zhangjing-777/receipt-processing-center/internal/ingest"
	"github.com/zhangjing-777/receipt-processing-center/internal/pipeline"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func parseDateFlag(name, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		printError("Error: invalid --%s date format, use YYYY-MM-DD: %v\n", name, err)
		return nil, false
	}
	return &parsed, true
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory to process receipts from (required)")
		userStr  = flag.String("user", "", "user id (uuid, required)")
		doExport = flag.Bool("export", false, "build a summary archive after processing")
		title    = flag.String("title", "Expense summary", "summary title used with --export")
		fromStr  = flag.String("from", "", "include stored receipts from this date (YYYY-MM-DD, with --export)")
		toStr    = flag.String("to", "", "include stored receipts up to this date (YYYY-MM-DD, with --export)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	userID, err := uuid.Parse(*userStr)
	if err != nil {
		printError("Error: --user must be a valid uuid: %v\n", err)
		os.Exit(1)
	}
	from, ok := parseDateFlag("from", *fromStr)
	if !ok {
		os.Exit(1)
	}
	to, ok := parseDateFlag("to", *toStr)
	if !ok {
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		printError("Error: startup failed: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	adapter := &ingest.DirectoryAdapter{Dir: *dir}
	docs, err := adapter.Documents()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Println("no processable files found")
		os.Exit(0)
	}

	summaryResult, err := application.Pipeline.ProcessBatch(ctx, userID, docs)
	if err != nil {
		printError("Error: batch failed: %v\n", err)
		os.Exit(1)
	}

	for _, r := range summaryResult.Results {
		switch {
		case r.State == pipeline.StatePersisted && r.Duplicate:
			fmt.Printf("%-40s duplicate of %s\n", r.Filename, r.RecordID)
		case r.State == pipeline.StatePersisted:
			fmt.Printf("%-40s ok %s\n", r.Filename, r.RecordID)
		default:
			fmt.Printf("%-40s rejected (%s)\n", r.Filename, r.Reason)
		}
	}
	fmt.Printf("processed: %d ok, %d failed\n", summaryResult.Succeeded, summaryResult.Failed)

	if !*doExport {
		return
	}

	decision, err := application.Quota.Admit(ctx, userID, entity.QuotaRequests)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if !decision.Allowed {
		printError("Error: request quota exhausted (%d/%d)\n", decision.Used, decision.Limit)
		os.Exit(1)
	}

	// The aggregator decrypts for itself; fetch the rows as stored.
	raw, err := application.Receipts.ListByUser(ctx, userID, from, to)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(raw) == 0 {
		fmt.Println("no stored receipts in range, skipping export")
		return
	}
	view, err := application.Aggregator.Aggregate(ctx, raw, *title)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ref, err := application.Packager.Package(ctx, userID, view, *title)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("archive: %s\ndownload: %s\n", ref.Key, ref.SignedURL)
}
