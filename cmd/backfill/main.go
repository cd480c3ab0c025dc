// Command backfill runs a one-shot fetch-and-store pass over a historical
// date range, bypassing the HTTP surface. It shares the service configuration
// (environment variables and .env), so it lands rows in the same tables the
// daemon serves.
//
// Usage:
//
//	go run ./cmd/backfill -start 2022-01-01 -end 2022-06-30
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/hydrowatch/reservoir-pipeline/internal/adapter/cdec"
	"github.com/hydrowatch/reservoir-pipeline/internal/config"
	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
	"github.com/hydrowatch/reservoir-pipeline/internal/pipeline"
	"github.com/hydrowatch/reservoir-pipeline/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	startFlag := flag.String("start", "", "range start, YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "range end, YYYY-MM-DD (defaults to today)")
	flag.Parse()

	if *startFlag == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -start")
	}
	start, err := time.ParseInLocation("2006-01-02", *startFlag, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid -start %q: want YYYY-MM-DD", *startFlag)
	}

	end := domain.Now().UTC().Truncate(24 * time.Hour)
	if *endFlag != "" {
		end, err = time.ParseInLocation("2006-01-02", *endFlag, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid -end %q: want YYYY-MM-DD", *endFlag)
		}
	}
	if end.Before(start) {
		return fmt.Errorf("-end %s is before -start %s", domain.DateOnly(end), domain.DateOnly(start))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	defer gateway.Close()

	if err := gateway.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("schema init: %w", err)
	}

	fetchRun := pipeline.NewFetchRun(
		cdec.NewClient(cfg, logger), cdec.NewStaging(cfg.CSVDir), gateway, logger, metrics)

	log.Printf("backfilling %s through %s", domain.DateOnly(start), domain.DateOnly(end))
	results := fetchRun.Run(ctx, start, end)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		r := results[name]
		if r.Error != "" {
			failed++
			log.Printf("%-28s FAILED: %s", name, r.Error)
			continue
		}
		log.Printf("%-28s rows=%d accepted=%d rejected=%d", name, r.Rows, r.Accepted, r.Rejected)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d stations failed\n", failed, len(results))
		os.Exit(1)
	}
	log.Printf("backfill complete: %d stations", len(results))
	return nil
}
