package scraper

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// Document is the minimal read capability the extraction chain needs from a
// browsing surface. Both full pages and embedded frames satisfy it.
type Document interface {
	// Text returns the trimmed visible text of the first element matching the
	// CSS selector, waiting up to timeout for it to appear.
	Text(selector string, timeout time.Duration) (string, bool)
	// TextX is Text for an XPath expression.
	TextX(xpath string, timeout time.Duration) (string, bool)
	// HTML returns the current document markup for snapshot parsing.
	HTML() (string, error)
}

type extractStrategy struct {
	name string
	run  func(doc Document, timeout time.Duration) string
}

// strategies are tried in order; the first non-empty result wins. The target
// markup is unstable, so each step is a looser anchor than the one before.
var strategies = []extractStrategy{
	{
		name: "title-sibling",
		run: func(doc Document, timeout time.Duration) string {
			txt, _ := doc.TextX(
				"//div[contains(@class,'content')]//p[contains(@class,'title-current-state')]/following-sibling::p[contains(@class,'font-weight-600')][1]",
				timeout)
			return txt
		},
	},
	{
		name: "title-text-anchor",
		run: func(doc Document, timeout time.Duration) string {
			txt, _ := doc.TextX(
				"(//*[self::p or self::h1 or self::h2 or self::div][contains(normalize-space(.), 'Estado actual')])[1]/following::p[contains(@class,'font-weight-600')][1]",
				min(timeout, 6*time.Second))
			return txt
		},
	},
	{
		name: "content-bold",
		run: func(doc Document, timeout time.Duration) string {
			txt, _ := doc.Text("div.content p.font-weight-600", min(timeout, 5*time.Second))
			return txt
		},
	},
	{
		name: "novelty-pill",
		run: func(doc Document, timeout time.Duration) string {
			txt, _ := doc.Text("p.guide-WhitOut-Novelty", min(timeout, 3*time.Second))
			return txt
		},
	},
	{
		name: "snapshot",
		run: func(doc Document, _ time.Duration) string {
			html, err := doc.HTML()
			if err != nil {
				return ""
			}
			return parseSnapshot(html)
		},
	},
}

// ExtractStatus walks the strategy chain against a loaded surface. Total
// failure yields an empty string, never an error.
func ExtractStatus(doc Document, timeout time.Duration) string {
	for _, s := range strategies {
		if txt := strings.TrimSpace(s.run(doc, timeout)); txt != "" {
			log.Debug().Str("strategy", s.name).Str("status", txt).Msg("Status extracted")
			return txt
		}
	}
	return ""
}

// parseSnapshot runs the selector chain over a static HTML snapshot. This is
// the last resort when live element waits all timed out but the markup is
// already present.
func parseSnapshot(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	selectors := []string{
		"div.content p.title-current-state ~ p.font-weight-600",
		"div.content p.font-weight-600",
		"p.font-weight-600",
		"p.guide-WhitOut-Novelty",
	}
	for _, sel := range selectors {
		if txt := strings.TrimSpace(doc.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

// rodDocument adapts a rod page (or frame page) to the Document interface.
type rodDocument struct {
	page *rod.Page
}

func (d rodDocument) Text(selector string, timeout time.Duration) (string, bool) {
	el, err := d.page.Timeout(timeout).Element(selector)
	if err != nil {
		return "", false
	}
	if err := el.WaitVisible(); err != nil {
		return "", false
	}
	txt, err := el.Text()
	if err != nil {
		return "", false
	}
	txt = strings.TrimSpace(txt)
	return txt, txt != ""
}

func (d rodDocument) TextX(xpath string, timeout time.Duration) (string, bool) {
	el, err := d.page.Timeout(timeout).ElementX(xpath)
	if err != nil {
		return "", false
	}
	if err := el.WaitVisible(); err != nil {
		return "", false
	}
	txt, err := el.Text()
	if err != nil {
		return "", false
	}
	txt = strings.TrimSpace(txt)
	return txt, txt != ""
}

func (d rodDocument) HTML() (string, error) {
	return d.page.HTML()
}
