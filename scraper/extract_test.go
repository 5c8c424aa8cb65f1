package scraper

import (
	"errors"
	"testing"
	"time"
)

// fakeDocument serves canned text per selector; unknown selectors behave like
// elements that never appeared.
type fakeDocument struct {
	bySelector map[string]string
	byXPath    map[string]string
	html       string
}

func (d fakeDocument) Text(selector string, _ time.Duration) (string, bool) {
	txt, ok := d.bySelector[selector]
	return txt, ok && txt != ""
}

func (d fakeDocument) TextX(xpath string, _ time.Duration) (string, bool) {
	txt, ok := d.byXPath[xpath]
	return txt, ok && txt != ""
}

func (d fakeDocument) HTML() (string, error) {
	if d.html == "" {
		return "", errors.New("no snapshot")
	}
	return d.html, nil
}

func TestExtractStatusPrimaryStrategy(t *testing.T) {
	doc := fakeDocument{
		byXPath: map[string]string{
			"//div[contains(@class,'content')]//p[contains(@class,'title-current-state')]/following-sibling::p[contains(@class,'font-weight-600')][1]": "Entregado",
		},
		bySelector: map[string]string{
			"p.guide-WhitOut-Novelty": "Sin novedad",
		},
	}

	if got := ExtractStatus(doc, time.Second); got != "Entregado" {
		t.Errorf("ExtractStatus = %q, want %q", got, "Entregado")
	}
}

func TestExtractStatusFallsBackToNoveltyPill(t *testing.T) {
	// Only the last-resort pill exists; all earlier strategies must fall through.
	doc := fakeDocument{
		bySelector: map[string]string{
			"p.guide-WhitOut-Novelty": "Tu envío no presenta novedad",
		},
	}

	if got := ExtractStatus(doc, time.Second); got != "Tu envío no presenta novedad" {
		t.Errorf("ExtractStatus = %q, want pill text", got)
	}
}

func TestExtractStatusTotalFailureIsEmpty(t *testing.T) {
	if got := ExtractStatus(fakeDocument{}, time.Second); got != "" {
		t.Errorf("ExtractStatus = %q, want empty", got)
	}
}

func TestExtractStatusSnapshotFallback(t *testing.T) {
	doc := fakeDocument{
		html: `<html><body>
			<div class="content">
				<p class="title-current-state">Estado actual de tu envío</p>
				<p class="font-weight-600">En tránsito</p>
			</div>
		</body></html>`,
	}

	if got := ExtractStatus(doc, time.Second); got != "En tránsito" {
		t.Errorf("ExtractStatus = %q, want %q", got, "En tránsito")
	}
}

func TestParseSnapshotSelectorOrder(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "sibling of title wins",
			html: `<div class="content"><p class="title-current-state">t</p><p class="font-weight-600">Entregado</p></div><p class="guide-WhitOut-Novelty">pill</p>`,
			want: "Entregado",
		},
		{
			name: "bold outside content card",
			html: `<p class="font-weight-600">Devuelto</p>`,
			want: "Devuelto",
		},
		{
			name: "pill as last resort",
			html: `<p class="guide-WhitOut-Novelty">Sin novedad</p>`,
			want: "Sin novedad",
		},
		{
			name: "nothing recognizable",
			html: `<div><span>hola</span></div>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseSnapshot(tt.html); got != tt.want {
				t.Errorf("parseSnapshot = %q, want %q", got, tt.want)
			}
		})
	}
}
