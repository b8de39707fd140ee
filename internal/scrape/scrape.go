package scrape

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"pricecrawler/internal/domain/models"
)

// Session is an open browser page. Exactly one session is open at a time;
// the crawler closes it on every exit path of an attempt.
type Session interface {
	// Document returns the rendered DOM of the loaded page.
	Document() (*goquery.Document, error)
	// URL is the page's final location after navigation and redirects.
	URL() string
	Close()
}

// Provider opens a page session at a URL. A non-empty remoteWS routes the
// session through a remote browser endpoint instead of a local launch.
type Provider interface {
	Open(ctx context.Context, url string, remoteWS string) (Session, error)
}

// Extractor is the per-store scraping plugin. ExtractProducts fails with
// *ExtractionError when the expected product markup is absent; a loaded page
// with zero matching nodes is an error, not an empty result. NextPageLink
// returns "" on the last listing page.
type Extractor interface {
	ExtractProducts(s Session) ([]models.Product, error)
	NextPageLink(s Session) (string, error)
}

// Registry maps store names to their extractors. Populated once at startup,
// read-only afterwards.
type Registry struct {
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

func (r *Registry) Register(storeName string, ex Extractor) {
	r.extractors[storeName] = ex
}

func (r *Registry) Lookup(storeName string) (Extractor, error) {
	ex, ok := r.extractors[storeName]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for store %q", storeName)
	}
	return ex, nil
}

func (r *Registry) Stores() []string {
	out := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		out = append(out, name)
	}
	return out
}
