package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/guiasync/tracking-reconciler/common/retry"
	"github.com/rs/zerolog/log"
)

// Selectors cover both the desktop and mobile variants of the search form.
const (
	inputSelector  = "#inputGuide, #inputGuideMovil, input.buscarGuiaInput"
	buttonSelector = "#BtnGuide, #BtnR, #BtnMovilGuide, #BtnRMovil, #buscarGuia, button.buscarGuia"
	frameSelector  = "iframe.iframe-sigue-tu-envio, iframe[src*='SiguetuEnvio'], iframe[src*='Shipment']"
)

const stealthScript = "Object.defineProperty(navigator, 'webdriver', {get: () => undefined});"

// SurfaceKind tags where the tracking result ended up after form submission.
type SurfaceKind string

const (
	SurfaceSame  SurfaceKind = "same"
	SurfaceTab   SurfaceKind = "tab"
	SurfaceFrame SurfaceKind = "frame"
)

// FetchStatus runs one full lookup session: isolated context, navigation,
// form fill, surface detection and extraction. It never propagates session
// errors upward; any failure yields an empty status so the batch continues.
func (s *Scraper) FetchStatus(ctx context.Context, trackingID string) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("trackingID", trackingID).Interface("panic", r).Msg("Session panicked")
			status = ""
			err = nil
		}
	}()

	raw, serr := s.runSession(ctx, trackingID)
	if serr != nil {
		log.Warn().Str("trackingID", trackingID).Err(serr).Msg("Session failed")
		return "", nil
	}
	return raw, nil
}

func (s *Scraper) runSession(ctx context.Context, trackingID string) (string, error) {
	incognito, err := s.browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("creating incognito context: %w", err)
	}
	defer func() {
		derr := proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(incognito)
		if derr != nil {
			log.Debug().Err(derr).Msg("Error disposing browser context")
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("opening page: %w", err)
	}
	page = page.Context(ctx)
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Error closing page")
		}
	}()

	if err := s.preparePage(page); err != nil {
		return "", err
	}

	if s.cfg.BlockResources {
		router := page.HijackRequests()
		err := router.Add("*", "", func(h *rod.Hijack) {
			switch h.Request.Type() {
			case proto.NetworkResourceTypeImage,
				proto.NetworkResourceTypeMedia,
				proto.NetworkResourceTypeFont,
				proto.NetworkResourceTypeStylesheet:
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			default:
				h.ContinueRequest(&proto.FetchContinueRequest{})
			}
		})
		if err != nil {
			return "", fmt.Errorf("installing resource blocker: %w", err)
		}
		go router.Run()
		defer func() {
			if rerr := router.Stop(); rerr != nil {
				log.Debug().Err(rerr).Msg("Error stopping hijack router")
			}
		}()
	}

	if err := s.navigate(ctx, page); err != nil {
		return "", err
	}

	popup, err := s.submitSearch(page, trackingID)
	if err != nil {
		return "", err
	}
	if popup != nil {
		popup = popup.Context(ctx)
		defer func() {
			if cerr := popup.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("Error closing popup")
			}
		}()
	}

	target := page
	surface := SurfaceSame
	if popup != nil {
		target = popup
		surface = SurfaceTab
	}

	raw, surface := s.extractFromSurface(target, surface)
	log.Info().
		Str("trackingID", trackingID).
		Str("surface", string(surface)).
		Str("status", raw).
		Msg("Session finished")
	return raw, nil
}

// preparePage applies the anti-detection profile to a fresh page.
func (s *Scraper) preparePage(page *rod.Page) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: "es-ES,es;q=0.9,en;q=0.8",
	}); err != nil {
		return fmt.Errorf("setting user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1280,
		Height:            800,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("setting viewport: %w", err)
	}

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		return fmt.Errorf("installing stealth script: %w", err)
	}
	return nil
}

// navigate loads the tracking page with a few retries. Anti-bot redirects
// sometimes abort the first navigation.
func (s *Scraper) navigate(ctx context.Context, page *rod.Page) error {
	navTimeout := 45 * time.Second
	if s.timeout > navTimeout {
		navTimeout = s.timeout
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := page.Timeout(navTimeout).Navigate(s.cfg.TrackingURL)
		if err == nil {
			if werr := page.Timeout(navTimeout).WaitDOMStable(300*time.Millisecond, 0); werr != nil {
				log.Debug().Err(werr).Msg("DOM never settled, continuing anyway")
			}
			return nil
		}
		lastErr = err
		log.Warn().Int("attempt", attempt+1).Err(err).Msg("Navigation failed")
		if attempt < 2 {
			if serr := retry.Sleep(ctx, time.Duration(attempt+1)*1500*time.Millisecond); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("navigation failed: %w", lastErr)
}

// submitSearch fills the visible tracking input and submits it. The site
// either opens a new tab or injects an iframe into the current page; the
// returned popup is nil when no new tab appeared within the grace window.
func (s *Scraper) submitSearch(page *rod.Page, trackingID string) (*rod.Page, error) {
	el, err := page.Timeout(s.timeout).Element(inputSelector)
	if err != nil {
		return nil, fmt.Errorf("locating search input: %w", err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("waiting for search input: %w", err)
	}
	if err := el.ScrollIntoView(); err != nil {
		log.Debug().Err(err).Msg("Could not scroll input into view")
	}

	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(trackingID); err != nil {
		return nil, fmt.Errorf("typing tracking number: %w", err)
	}

	// Enter usually opens the result tab; give it a short grace window.
	waitPopup := page.Timeout(2 * time.Second).WaitOpen()
	if err := el.Type(input.Enter); err != nil {
		return nil, fmt.Errorf("submitting search: %w", err)
	}

	popup, perr := waitPopup()
	if perr == nil {
		return popup, nil
	}

	// No tab appeared: fall back to clicking a search button. The result may
	// still land in the current page as an injected frame.
	btn, berr := page.Timeout(3 * time.Second).Element(buttonSelector)
	if berr == nil {
		if cerr := btn.Click(proto.InputMouseButtonLeft, 1); cerr != nil {
			log.Debug().Err(cerr).Msg("Search button click failed")
		}
	}
	return nil, nil
}

// extractFromSurface prefers an injected result frame over the page itself.
func (s *Scraper) extractFromSurface(target *rod.Page, surface SurfaceKind) (string, SurfaceKind) {
	frameEl, ferr := target.Timeout(4 * time.Second).Element(frameSelector)
	if ferr == nil {
		framePage, err := frameEl.Frame()
		if err == nil {
			if raw := ExtractStatus(rodDocument{page: framePage}, s.timeout); raw != "" {
				return raw, SurfaceFrame
			}
		} else {
			log.Debug().Err(err).Msg("Could not resolve result frame")
		}
	}

	return strings.TrimSpace(ExtractStatus(rodDocument{page: target}, s.timeout)), surface
}
