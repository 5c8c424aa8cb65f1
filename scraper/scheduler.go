package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/guiasync/tracking-reconciler/common/work"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
	"golang.org/x/time/rate"
)

// Result is one resolved identifier. Raw is empty when every attempt failed.
type Result struct {
	TrackingID string
	Raw        string
	Attempts   int
}

// SchedulerConfig bounds a RunMany invocation.
type SchedulerConfig struct {
	Concurrency int
	// TargetRate caps task-launch frequency in starts per second. Absent
	// means launch as fast as the concurrency gate allows.
	TargetRate mo.Option[float64]
	Retry      retry.Policy
	// SessionTimeout bounds one identifier including all its retries.
	SessionTimeout time.Duration
}

// DefaultSchedulerConfig mirrors the historical defaults: 3 parallel
// sessions, one retry, no rate cap.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Concurrency:    3,
		TargetRate:     mo.None[float64](),
		Retry:          retry.DefaultPolicy(),
		SessionTimeout: 10 * time.Minute,
	}
}

// RunMany resolves every identifier through the fetcher under a hard
// concurrency cap and an optional launch-rate cap. It always returns exactly
// one Result per input identifier, duplicates included; identifiers that
// exhaust their retries come back with an empty Raw. Completion order is not
// the input order.
func RunMany(ctx context.Context, fetcher StatusFetcher, trackingIDs []string, cfg SchedulerConfig) ([]Result, error) {
	if len(trackingIDs) == 0 {
		return nil, nil
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}

	pool, err := work.NewPoolWithConfig[Result](work.PoolConfig{
		NumWorkers:      cfg.Concurrency,
		TaskChannelSize: len(trackingIDs),
		ResultChanSize:  len(trackingIDs),
		TaskTimeout:     cfg.SessionTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scraper pool: %w", err)
	}

	pool.Start(ctx, "status-scrape")
	defer pool.Stop()

	var limiter *rate.Limiter
	if target, ok := cfg.TargetRate.Get(); ok && target > 0 {
		limiter = rate.NewLimiter(rate.Limit(target), 1)
		log.Info().Float64("rate", target).Int("tasks", len(trackingIDs)).Msg("Staggering task launches")
	}

	// Feed from a separate goroutine so result draining starts immediately.
	// The queue holds the whole batch, so AddTask never blocks on capacity.
	feedErr := make(chan error, 1)
	go func() {
		for _, id := range trackingIDs {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					feedErr <- err
					return
				}
			}
			task := fetchTask{fetcher: fetcher, trackingID: id, policy: cfg.Retry}
			if err := pool.AddTask(ctx, task); err != nil {
				feedErr <- err
				return
			}
		}
		feedErr <- nil
	}()

	results := make([]Result, 0, len(trackingIDs))
	for range trackingIDs {
		select {
		case res := <-pool.Results():
			if res.Error != nil {
				// A timed-out session still owes its identifier a row.
				results = append(results, Result{TrackingID: res.TaskID})
				continue
			}
			results = append(results, res.Result)
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}

	if err := <-feedErr; err != nil {
		return results, err
	}
	return results, nil
}

// fetchTask runs all attempts for a single identifier. Retries are strictly
// sequential and only fire on empty results; a whole new session is opened
// per attempt because failures are usually anti-bot state tied to the
// session, not to the extraction step.
type fetchTask struct {
	fetcher    StatusFetcher
	trackingID string
	policy     retry.Policy
}

func (t fetchTask) ExecutorID() string { return t.trackingID }

func (t fetchTask) Execute(ctx context.Context) (Result, error) {
	attempts := t.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	res := Result{TrackingID: t.trackingID}
	for attempt := 0; attempt < attempts; attempt++ {
		res.Attempts = attempt + 1

		raw, err := t.fetcher.FetchStatus(ctx, t.trackingID)
		if err != nil {
			log.Warn().Str("trackingID", t.trackingID).Err(err).Msg("Fetch attempt errored")
			raw = ""
		}
		if raw != "" {
			res.Raw = raw
			return res, nil
		}

		if attempt < attempts-1 {
			if serr := retry.Sleep(ctx, t.policy.Backoff(attempt)); serr != nil {
				return res, nil
			}
		}
	}

	log.Info().Str("trackingID", t.trackingID).Int("attempts", res.Attempts).Msg("Empty after retries")
	return res, nil
}

func (t fetchTask) OnError(err error) {
	log.Error().Err(err).Str("trackingID", t.trackingID).Msg("Scrape task encountered error")
}

func (t fetchTask) Timeout() time.Duration { return 0 }
