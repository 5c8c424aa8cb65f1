package scraper

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/guiasync/tracking-reconciler/common/config"
	"github.com/rs/zerolog/log"
)

// StatusFetcher resolves one tracking identifier to its raw carrier status.
// An empty string means the lookup failed for this attempt; err is reserved
// for unrecoverable setup problems.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, trackingID string) (string, error)
}

// Scraper drives carrier-status lookups through one shared browser process.
// Each lookup runs in its own incognito context, so a single Scraper is safe
// for concurrent use once Start has returned.
type Scraper struct {
	cfg      config.ScraperConfig
	timeout  time.Duration
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// New creates a scraper. Call Start before fetching.
func New(cfg config.ScraperConfig, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scraper{cfg: cfg, timeout: timeout}
}

// Start launches the browser process and connects to it.
func (s *Scraper) Start(ctx context.Context) error {
	l := launcher.New().
		Headless(s.cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1280,800")

	controlURL, err := l.Launch()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if s.cfg.SlowMoMs > 0 {
		browser = browser.SlowMotion(time.Duration(s.cfg.SlowMoMs) * time.Millisecond)
	}

	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return err
	}

	s.launcher = l
	s.browser = browser
	log.Info().Bool("headless", s.cfg.Headless).Msg("Browser launched")
	return nil
}

// Close shuts down the browser process.
func (s *Scraper) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}
