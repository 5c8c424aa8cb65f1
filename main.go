package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guiasync/tracking-reconciler/batch"
	"github.com/guiasync/tracking-reconciler/common/config"
	"github.com/guiasync/tracking-reconciler/common/db"
	"github.com/guiasync/tracking-reconciler/common/logger"
	"github.com/guiasync/tracking-reconciler/common/redis"
	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/guiasync/tracking-reconciler/common/storage"
	"github.com/guiasync/tracking-reconciler/report"
	"github.com/guiasync/tracking-reconciler/repository"
	"github.com/guiasync/tracking-reconciler/scraper"
	"github.com/guiasync/tracking-reconciler/sheets"
	"github.com/guiasync/tracking-reconciler/tracker"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

const usage = `Usage: tracking-reconciler <command> [flags]

Commands:
  scrape         scrape carrier statuses and write them back to the sheet
  compare        print vendor/carrier differences as CSV
  report         append differences to the dated report tab
  mark-compare   write COINCIDEN/ALERTA columns for all rows
  export-report  export differences to CSV/XLSX files (optionally GCS)
  all            scrape, then report, then mark-compare
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	closeLog := logger.Setup(cfg.Log)
	defer closeLog()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "scrape":
		err = cmdScrape(ctx, cfg, os.Args[2:])
	case "compare":
		err = cmdCompare(ctx, cfg, os.Args[2:])
	case "report":
		err = cmdReport(ctx, cfg, os.Args[2:])
	case "mark-compare":
		err = cmdMarkCompare(ctx, cfg, os.Args[2:])
	case "export-report":
		err = cmdExportReport(ctx, cfg, os.Args[2:])
	case "all":
		err = cmdAll(ctx, cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
}

func newSheetsClient(ctx context.Context, cfg config.Config) (*sheets.Client, error) {
	if cfg.Sheets.SpreadsheetID == "" {
		return nil, errors.New("SPREADSHEET_ID is not configured")
	}
	return sheets.NewClient(ctx, cfg.Sheets)
}

func newNormalizer(cfg config.Config) *tracker.Normalizer {
	dict := tracker.LoadDictionary(cfg.Dictionary.VendorMapPath, cfg.Dictionary.CarrierMapPath)
	return tracker.NewNormalizer(dict)
}

// scrapeFlags mirror the historical batch runner's CLI surface.
type scrapeFlags struct {
	startRow      int
	endRow        int
	onlyEmpty     bool
	skipSettled   bool
	concurrency   int
	rps           float64
	retries       int
	timeoutMs     int
	chunkSize     int
	sleepBetween  float64
	secondPass    bool
	secondPassRPS float64
}

func registerScrapeFlags(fs *flag.FlagSet, f *scrapeFlags) {
	fs.IntVar(&f.startRow, "start-row", 2, "first data row (1-based)")
	fs.IntVar(&f.endRow, "end-row", 0, "last row inclusive, 0 means whole sheet")
	fs.BoolVar(&f.onlyEmpty, "only-empty", false, "only rows without a carrier status")
	fs.BoolVar(&f.skipSettled, "skip-settled", false, "skip rows already in a terminal state")
	fs.IntVar(&f.concurrency, "max-concurrency", 3, "simultaneous browser sessions")
	fs.Float64Var(&f.rps, "rps", 0.8, "task launches per second, 0 disables the throttle")
	fs.IntVar(&f.retries, "retries", 2, "retries per identifier on empty result")
	fs.IntVar(&f.timeoutMs, "timeout-ms", 35000, "per-element wait timeout")
	fs.IntVar(&f.chunkSize, "chunk-size", 1000, "identifiers per batch")
	fs.Float64Var(&f.sleepBetween, "sleep-between", 10, "seconds between batches")
	fs.BoolVar(&f.secondPass, "second-pass", true, "rerun empty results within each batch")
	fs.Float64Var(&f.secondPassRPS, "second-pass-rps", 0, "rate for the second pass, 0 uses the default")
}

func (f scrapeFlags) batchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.ChunkSize = f.chunkSize
	cfg.SleepBetween = time.Duration(f.sleepBetween * float64(time.Second))
	cfg.SecondPass = f.secondPass
	if f.secondPassRPS > 0 {
		cfg.SecondPassRate = mo.Some(f.secondPassRPS)
	}

	cfg.Scheduler.Concurrency = f.concurrency
	if f.rps > 0 {
		cfg.Scheduler.TargetRate = mo.Some(f.rps)
	}
	cfg.Scheduler.Retry = retry.Policy{
		MaxAttempts: f.retries + 1,
		BaseDelay:   750 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
	return cfg
}

func cmdScrape(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	var f scrapeFlags
	registerScrapeFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runScrape(ctx, cfg, f)
}

func runScrape(ctx context.Context, cfg config.Config, f scrapeFlags) error {
	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}
	norm := newNormalizer(cfg)

	sc := scraper.New(cfg.Scraper, time.Duration(f.timeoutMs)*time.Millisecond)
	if err := sc.Start(ctx); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error closing browser")
		}
	}()

	var cache batch.StatusCache
	if cfg.Redis.Enabled() {
		redisClient, err := redis.NewClient(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without status cache")
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	}

	var runRepo *repository.RunRepository
	var runID string
	if cfg.PgSql.Enabled() {
		database, err := db.SetupDatabase(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Run-history database unavailable, continuing without it")
		} else {
			defer database.Close()
			runRepo = repository.NewRunRepository(database)
			if err := runRepo.EnsureSchema(ctx); err != nil {
				return err
			}
			run, err := runRepo.Create(ctx, "scrape", 0)
			if err != nil {
				return err
			}
			runID = run.ID
		}
	}

	runner := batch.NewRunner(sc, cache, f.batchConfig())
	stats, err := report.UpdateStatuses(ctx, store, runner, norm, report.UpdateOptions{
		StartRow:    f.startRow,
		EndRow:      f.endRow,
		OnlyEmpty:   f.onlyEmpty,
		SkipSettled: f.skipSettled,
	})
	if err != nil {
		return err
	}

	if runRepo != nil && runID != "" {
		if ferr := runRepo.Finish(ctx, runID, stats.Processed, stats.Resolved, stats.Empty); ferr != nil {
			log.Warn().Err(ferr).Msg("Could not record run history")
		}
	}
	return nil
}

func cmdCompare(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	startRow := fs.Int("start-row", 2, "first data row")
	endRow := fs.Int("end-row", 0, "last row inclusive, 0 means whole sheet")
	all := fs.Bool("all", false, "include matching rows, not just mismatches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}

	diffs, err := report.Compare(ctx, store, newNormalizer(cfg), report.CompareOptions{
		StartRow:       *startRow,
		EndRow:         *endRow,
		OnlyMismatches: !*all,
	})
	if err != nil {
		return err
	}
	return report.WriteCSV(os.Stdout, diffs)
}

func cmdReport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	startRow := fs.Int("start-row", 2, "first data row")
	endRow := fs.Int("end-row", 0, "last row inclusive, 0 means whole sheet")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}

	tab, err := report.GenerateDaily(ctx, store, newNormalizer(cfg), cfg.Sheets.ReportPrefix, report.CompareOptions{
		StartRow:       *startRow,
		EndRow:         *endRow,
		OnlyMismatches: true,
	})
	if err != nil {
		return err
	}
	log.Info().Str("tab", tab).Msg("Daily report written")
	return nil
}

func cmdMarkCompare(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("mark-compare", flag.ExitOnError)
	startRow := fs.Int("start-row", 2, "first data row")
	endRow := fs.Int("end-row", 0, "last row inclusive, 0 means whole sheet")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}

	written, err := report.MarkCompare(ctx, store, newNormalizer(cfg), *startRow, *endRow)
	if err != nil {
		return err
	}
	log.Info().Int("rows", written).Msg("Comparison columns written")
	return nil
}

func cmdExportReport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("export-report", flag.ExitOnError)
	startRow := fs.Int("start-row", 2, "first data row")
	endRow := fs.Int("end-row", 0, "last row inclusive, 0 means whole sheet")
	csvPath := fs.String("csv", "", "write differences to this CSV file")
	xlsxPath := fs.String("xlsx", "", "write differences to this XLSX file")
	upload := fs.Bool("upload", false, "also archive the XLSX in the report bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}

	diffs, err := report.Compare(ctx, store, newNormalizer(cfg), report.CompareOptions{
		StartRow:       *startRow,
		EndRow:         *endRow,
		OnlyMismatches: true,
	})
	if err != nil {
		return err
	}

	if *csvPath != "" {
		file, err := os.Create(*csvPath)
		if err != nil {
			return fmt.Errorf("creating csv file: %w", err)
		}
		if err := report.WriteCSV(file, diffs); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		log.Info().Str("path", *csvPath).Int("rows", len(diffs)).Msg("CSV exported")
	}

	if *xlsxPath != "" || *upload {
		content, err := report.BuildXLSX(diffs)
		if err != nil {
			return err
		}

		if *xlsxPath != "" {
			if err := os.WriteFile(*xlsxPath, content, 0o644); err != nil {
				return fmt.Errorf("writing xlsx file: %w", err)
			}
			log.Info().Str("path", *xlsxPath).Int("rows", len(diffs)).Msg("XLSX exported")
		}

		if *upload {
			if !cfg.GCS.Enabled() {
				return errors.New("GCS_REPORT_BUCKET is not configured")
			}
			gcs, err := storage.NewGCSStorage(ctx, cfg.GCS)
			if err != nil {
				return fmt.Errorf("creating GCS client: %w", err)
			}
			if _, err := report.UploadXLSX(ctx, gcs, cfg.GCS.Bucket, cfg.Sheets.ReportPrefix, content); err != nil {
				return err
			}
		}
	}
	return nil
}

func cmdAll(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("all", flag.ExitOnError)
	var f scrapeFlags
	registerScrapeFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := runScrape(ctx, cfg, f); err != nil {
		return err
	}

	store, err := newSheetsClient(ctx, cfg)
	if err != nil {
		return err
	}
	norm := newNormalizer(cfg)

	tab, err := report.GenerateDaily(ctx, store, norm, cfg.Sheets.ReportPrefix, report.CompareOptions{
		StartRow:       f.startRow,
		EndRow:         f.endRow,
		OnlyMismatches: true,
	})
	if err != nil {
		return err
	}
	log.Info().Str("tab", tab).Msg("Daily report written")

	if _, err := report.MarkCompare(ctx, store, norm, f.startRow, f.endRow); err != nil {
		return err
	}
	return nil
}
