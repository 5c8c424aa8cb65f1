package batch

import (
	"context"
	"sync"
	"testing"

	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/guiasync/tracking-reconciler/scraper"
	"github.com/samber/mo"
)

// scriptedFetcher returns statuses per identifier, optionally failing the
// first call for selected identifiers.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses map[string]string
	emptyOn  map[string]int // identifier -> number of leading empty responses
	calls    map[string]int
}

func newScriptedFetcher(statuses map[string]string, emptyOn map[string]int) *scriptedFetcher {
	return &scriptedFetcher{
		statuses: statuses,
		emptyOn:  emptyOn,
		calls:    map[string]int{},
	}
}

func (f *scriptedFetcher) FetchStatus(ctx context.Context, trackingID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[trackingID]++
	if f.calls[trackingID] <= f.emptyOn[trackingID] {
		return "", nil
	}
	return f.statuses[trackingID], nil
}

func (f *scriptedFetcher) callCount(trackingID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[trackingID]
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.SleepBetween = 0
	cfg.Scheduler.Retry = retry.Policy{MaxAttempts: 1, BaseDelay: 1, Multiplier: 2}
	return cfg
}

func TestRunnerChunksAndFlushes(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	statuses := map[string]string{}
	for _, id := range ids {
		statuses[id] = "Entregado"
	}
	fetcher := newScriptedFetcher(statuses, nil)

	cfg := fastConfig()
	cfg.ChunkSize = 2
	cfg.SecondPass = false

	var flushes [][]scraper.Result
	runner := NewRunner(fetcher, nil, cfg)
	results, err := runner.Run(context.Background(), ids, func(ctx context.Context, res []scraper.Result) error {
		flushes = append(flushes, res)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != len(ids) {
		t.Errorf("got %d results, want %d", len(results), len(ids))
	}
	if len(flushes) != 3 { // ceil(5/2)
		t.Errorf("flushed %d chunks, want 3", len(flushes))
	}
	total := 0
	for _, f := range flushes {
		total += len(f)
	}
	if total != len(ids) {
		t.Errorf("flushed %d results in total, want %d", total, len(ids))
	}
}

func TestRunnerSecondPassFillsBlanks(t *testing.T) {
	fetcher := newScriptedFetcher(
		map[string]string{"a": "Entregado", "b": "En tránsito", "c": "Devuelto"},
		map[string]int{"b": 1}, // empty on the first pass only
	)

	cfg := fastConfig()
	cfg.SecondPass = true
	cfg.SecondPassRate = mo.Some(100.0) // keep the test fast

	runner := NewRunner(fetcher, nil, cfg)
	results, err := runner.Run(context.Background(), []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	byID := map[string]string{}
	for _, res := range results {
		byID[res.TrackingID] = res.Raw
	}
	if byID["b"] != "En tránsito" {
		t.Errorf("second pass did not fill b: got %q", byID["b"])
	}
	if fetcher.callCount("b") != 2 {
		t.Errorf("b fetched %d times, want 2", fetcher.callCount("b"))
	}
	// Resolved identifiers must not be refetched by the second pass.
	if fetcher.callCount("a") != 1 {
		t.Errorf("a fetched %d times, want 1", fetcher.callCount("a"))
	}
}

// mapCache is an in-memory StatusCache.
type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) GetStatus(ctx context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[id]
	return v, ok, nil
}

func (c *mapCache) SetStatus(ctx context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = status
	return nil
}

func TestRunnerServesFromCache(t *testing.T) {
	fetcher := newScriptedFetcher(map[string]string{"fresh": "En tránsito"}, nil)
	cache := &mapCache{data: map[string]string{"cached": "Entregado"}}

	cfg := fastConfig()
	cfg.SecondPass = false

	runner := NewRunner(fetcher, cache, cfg)
	results, err := runner.Run(context.Background(), []string{"cached", "fresh"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	byID := map[string]string{}
	for _, res := range results {
		byID[res.TrackingID] = res.Raw
	}
	if byID["cached"] != "Entregado" {
		t.Errorf("cached = %q, want Entregado", byID["cached"])
	}
	if fetcher.callCount("cached") != 0 {
		t.Errorf("cached identifier was fetched %d times, want 0", fetcher.callCount("cached"))
	}

	// Fresh result must be written back to the cache.
	if v, ok, _ := cache.GetStatus(context.Background(), "fresh"); !ok || v != "En tránsito" {
		t.Errorf("cache write-back missing: %q %v", v, ok)
	}
}

func TestRunnerEmptyInput(t *testing.T) {
	runner := NewRunner(newScriptedFetcher(nil, nil), nil, fastConfig())
	results, err := runner.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty input", len(results))
	}
}
