package batch

import (
	"context"
	"time"

	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/guiasync/tracking-reconciler/scraper"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// secondPassDefaultRate is the relaxed launch rate used for the blank-filling
// pass when no explicit rate was configured.
const secondPassDefaultRate = 0.6

// StatusCache lets a runner skip identifiers whose carrier status was
// resolved recently. A nil cache disables the behavior.
type StatusCache interface {
	GetStatus(ctx context.Context, trackingID string) (string, bool, error)
	SetStatus(ctx context.Context, trackingID, status string) error
}

// FlushFunc receives each chunk's results as soon as the chunk settles, so
// partial progress survives a crash mid-run.
type FlushFunc func(ctx context.Context, results []scraper.Result) error

// Config bounds one orchestrated run.
type Config struct {
	ChunkSize    int
	SleepBetween time.Duration
	SecondPass   bool
	// SecondPassRate overrides the launch rate of the blank-filling pass.
	SecondPassRate mo.Option[float64]
	Scheduler      scraper.SchedulerConfig
}

// DefaultConfig mirrors the historical orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		SleepBetween: 10 * time.Second,
		SecondPass:   true,
		Scheduler:    scraper.DefaultSchedulerConfig(),
	}
}

// Runner splits a large identifier list into chunks and drives the scheduler
// chunk by chunk, with a second pass over still-empty results and a cool-down
// sleep between chunks.
type Runner struct {
	fetcher scraper.StatusFetcher
	cache   StatusCache
	cfg     Config
}

// NewRunner creates a runner. cache may be nil.
func NewRunner(fetcher scraper.StatusFetcher, cache StatusCache, cfg Config) *Runner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	return &Runner{fetcher: fetcher, cache: cache, cfg: cfg}
}

// Run resolves every identifier and returns one Result per input. flush may
// be nil; when set it is called once per chunk with that chunk's final
// results.
func (r *Runner) Run(ctx context.Context, trackingIDs []string, flush FlushFunc) ([]scraper.Result, error) {
	if len(trackingIDs) == 0 {
		return nil, nil
	}

	chunks := lo.Chunk(trackingIDs, r.cfg.ChunkSize)
	log.Info().
		Int("identifiers", len(trackingIDs)).
		Int("chunks", len(chunks)).
		Int("chunkSize", r.cfg.ChunkSize).
		Msg("Planning batches")

	var all []scraper.Result
	for i, chunk := range chunks {
		log.Info().Int("batch", i+1).Int("of", len(chunks)).Int("size", len(chunk)).Msg("Running batch")

		results, err := r.runChunk(ctx, chunk)
		if err != nil {
			return all, err
		}

		all = append(all, results...)
		if flush != nil {
			if err := flush(ctx, results); err != nil {
				return all, err
			}
		}

		if i < len(chunks)-1 && r.cfg.SleepBetween > 0 {
			log.Info().Dur("sleep", r.cfg.SleepBetween).Msg("Cooling down before next batch")
			if err := retry.Sleep(ctx, r.cfg.SleepBetween); err != nil {
				return all, err
			}
		}
	}
	return all, nil
}

func (r *Runner) runChunk(ctx context.Context, chunk []string) ([]scraper.Result, error) {
	cached, remaining := r.splitCached(ctx, chunk)

	results, err := scraper.RunMany(ctx, r.fetcher, remaining, r.cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	if r.cfg.SecondPass {
		results, err = r.fillBlanks(ctx, results)
		if err != nil {
			return nil, err
		}
	}

	r.storeCache(ctx, results)
	return append(cached, results...), nil
}

// splitCached peels off identifiers with a fresh cached status.
func (r *Runner) splitCached(ctx context.Context, chunk []string) (cached []scraper.Result, remaining []string) {
	if r.cache == nil {
		return nil, chunk
	}

	for _, id := range chunk {
		status, hit, err := r.cache.GetStatus(ctx, id)
		if err != nil {
			log.Warn().Str("trackingID", id).Err(err).Msg("Status cache read failed")
		}
		if hit {
			cached = append(cached, scraper.Result{TrackingID: id, Raw: status})
			continue
		}
		remaining = append(remaining, id)
	}

	if len(cached) > 0 {
		log.Info().Int("cached", len(cached)).Int("remaining", len(remaining)).Msg("Serving statuses from cache")
	}
	return cached, remaining
}

// fillBlanks reruns only the identifiers that came back empty, at a relaxed
// rate, and merges any newly found statuses over the placeholders.
func (r *Runner) fillBlanks(ctx context.Context, results []scraper.Result) ([]scraper.Result, error) {
	missing := lo.Filter(results, func(res scraper.Result, _ int) bool {
		return res.Raw == ""
	})
	if len(missing) == 0 {
		return results, nil
	}

	cfg := r.cfg.Scheduler
	relaxed := r.cfg.SecondPassRate.OrElse(cfg.TargetRate.OrElse(secondPassDefaultRate))
	cfg.TargetRate = mo.Some(relaxed)

	ids := lo.Map(missing, func(res scraper.Result, _ int) string { return res.TrackingID })
	log.Info().Int("missing", len(ids)).Msg("Second pass for empty results")

	refetched, err := scraper.RunMany(ctx, r.fetcher, ids, cfg)
	if err != nil {
		return nil, err
	}

	found := map[string]string{}
	for _, res := range refetched {
		if res.Raw != "" {
			found[res.TrackingID] = res.Raw
		}
	}

	for i := range results {
		if results[i].Raw == "" {
			if raw, ok := found[results[i].TrackingID]; ok {
				results[i].Raw = raw
			}
		}
	}
	return results, nil
}

func (r *Runner) storeCache(ctx context.Context, results []scraper.Result) {
	if r.cache == nil {
		return
	}
	for _, res := range results {
		if res.Raw == "" {
			continue
		}
		if err := r.cache.SetStatus(ctx, res.TrackingID, res.Raw); err != nil {
			log.Warn().Str("trackingID", res.TrackingID).Err(err).Msg("Status cache write failed")
		}
	}
}
