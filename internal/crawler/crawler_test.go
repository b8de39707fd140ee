package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pricecrawler/internal/checkpoint"
	"pricecrawler/internal/domain/models"
	"pricecrawler/internal/scrape"
	"pricecrawler/internal/stores"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type openCall struct {
	url    string
	remote string
}

type stubSession struct {
	products   []models.Product
	next       string
	extractErr error
	closed     *int
}

func (s *stubSession) Document() (*goquery.Document, error) { return nil, nil }
func (s *stubSession) URL() string                          { return "" }
func (s *stubSession) Close()                               { *s.closed++ }

type stubProvider struct {
	open   func(url, remote string) (*stubSession, error)
	calls  []openCall
	closed int
}

func (p *stubProvider) Open(_ context.Context, url, remote string) (scrape.Session, error) {
	p.calls = append(p.calls, openCall{url, remote})
	s, err := p.open(url, remote)
	if err != nil {
		return nil, err
	}
	s.closed = &p.closed
	return s, nil
}

// stubExtractor reads the scripted result straight off the stub session.
type stubExtractor struct{}

func (stubExtractor) ExtractProducts(s scrape.Session) ([]models.Product, error) {
	ss := s.(*stubSession)
	if ss.extractErr != nil {
		return nil, ss.extractErr
	}
	return ss.products, nil
}

func (stubExtractor) NextPageLink(s scrape.Session) (string, error) {
	return s.(*stubSession).next, nil
}

func acmeConfigs() map[string]stores.Config {
	return map[string]stores.Config{
		"acme": {
			BaseURL: "https://acme.test",
			Categories: []models.CategoryRef{
				{RelativeLink: "/dairy", Category: "dairy"},
				{RelativeLink: "/bakery", Category: "bakery"},
			},
		},
	}
}

func prods(titles ...string) []models.Product {
	out := make([]models.Product, 0, len(titles))
	for _, title := range titles {
		out = append(out, models.Product{
			Title:       title,
			RetailPrice: models.PriceFacet{Amount: scrape.Ptr(1.00)},
		})
	}
	return out
}

func newTestCrawler(dir string, p scrape.Provider, cfgs map[string]stores.Config, remoteWS string) *Crawler {
	reg := scrape.NewRegistry()
	for name := range cfgs {
		reg.Register(name, stubExtractor{})
	}
	return New(Options{
		Configs:         cfgs,
		Registry:        reg,
		Provider:        p,
		Snapshots:       checkpoint.New(dir, quiet()),
		RemoteBrowserWS: remoteWS,
		RetryDelay:      time.Millisecond,
		Logger:          quiet(),
	})
}

func readBatch(t *testing.T, path string) models.Batch {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	var batch models.Batch
	if err := json.Unmarshal(b, &batch); err != nil {
		t.Fatalf("parse batch: %v", err)
	}
	return batch
}

func TestCrawlVisitsPagesInOrderAndWritesBatch(t *testing.T) {
	type page struct {
		products []models.Product
		next     string
	}
	pages := map[string]page{
		"https://acme.test/dairy":        {products: prods("Piens 1l"), next: "/dairy?page=2"},
		"https://acme.test/dairy?page=2": {products: prods("Siers 500g")},
		"https://acme.test/bakery":       {products: prods("Maize")},
	}

	p := &stubProvider{open: func(url, _ string) (*stubSession, error) {
		pg, ok := pages[url]
		if !ok {
			return nil, errors.New("unexpected url " + url)
		}
		return &stubSession{products: pg.products, next: pg.next}, nil
	}}

	dir := t.TempDir()
	c := newTestCrawler(dir, p, acmeConfigs(), "")

	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.BatchPaths) != 1 {
		t.Fatalf("expected 1 batch, got %v", res.BatchPaths)
	}

	wantOrder := []string{
		"https://acme.test/dairy",
		"https://acme.test/dairy?page=2",
		"https://acme.test/bakery",
	}
	if len(p.calls) != len(wantOrder) {
		t.Fatalf("open calls = %v, want %v", p.calls, wantOrder)
	}
	for i, want := range wantOrder {
		if p.calls[i].url != want {
			t.Errorf("call %d visited %s, want %s", i, p.calls[i].url, want)
		}
	}
	if p.closed != 3 {
		t.Errorf("closed %d sessions, want 3", p.closed)
	}

	batch := readBatch(t, res.BatchPaths[0])
	if batch.StoreName != "acme" {
		t.Errorf("batch store = %q", batch.StoreName)
	}
	if len(batch.Categories["dairy"]) != 2 || len(batch.Categories["bakery"]) != 1 {
		t.Errorf("batch contents wrong: %+v", batch.Categories)
	}

	// Completed store leaves no checkpoint behind.
	cp, err := checkpoint.New(dir, quiet()).Load("acme")
	if err != nil || cp != nil {
		t.Errorf("checkpoint not removed after completion: %+v, %v", cp, err)
	}
}

func TestRetryBudgetAbandonsCategoryAfterThreeFailures(t *testing.T) {
	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		if url == "https://acme.test/dairy" {
			return nil, errors.New("connection reset")
		}
		return &stubSession{products: prods("Maize")}, nil
	}

	c := newTestCrawler(t.TempDir(), p, acmeConfigs(), "")
	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dairyAttempts := 0
	for _, call := range p.calls {
		if call.url == "https://acme.test/dairy" {
			dairyAttempts++
		}
	}
	if dairyAttempts != 3 {
		t.Errorf("dairy attempted %d times, want exactly 3", dairyAttempts)
	}

	// Abandonment must not abort the store.
	if len(res.BatchPaths) != 1 {
		t.Fatalf("expected batch despite abandoned category, got %v", res.BatchPaths)
	}
	batch := readBatch(t, res.BatchPaths[0])
	if len(batch.Categories["bakery"]) != 1 {
		t.Errorf("bakery not crawled after dairy abandonment: %+v", batch.Categories)
	}
	if len(batch.Categories["dairy"]) != 0 {
		t.Errorf("abandoned dairy should have no products: %+v", batch.Categories["dairy"])
	}
}

func TestSessionClosedOnExtractionFailure(t *testing.T) {
	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		if url == "https://acme.test/dairy" {
			return &stubSession{extractErr: &scrape.ExtractionError{URL: url, Reason: "no product cards found"}}, nil
		}
		return &stubSession{products: prods("Maize")}, nil
	}

	c := newTestCrawler(t.TempDir(), p, acmeConfigs(), "")
	if _, err := c.Run(context.Background(), []string{"acme"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 3 failed dairy attempts plus 1 bakery page, each session closed.
	if p.closed != 4 {
		t.Errorf("closed %d sessions, want 4", p.closed)
	}
}

func TestAttemptCounterResetsPerPage(t *testing.T) {
	fails := map[string]int{
		"https://acme.test/dairy":        2,
		"https://acme.test/dairy?page=2": 2,
	}
	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		if fails[url] > 0 {
			fails[url]--
			return nil, errors.New("timeout")
		}
		switch url {
		case "https://acme.test/dairy":
			return &stubSession{products: prods("Piens"), next: "/dairy?page=2"}, nil
		case "https://acme.test/dairy?page=2":
			return &stubSession{products: prods("Siers")}, nil
		default:
			return &stubSession{products: prods("Maize")}, nil
		}
	}

	c := newTestCrawler(t.TempDir(), p, acmeConfigs(), "")
	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Two failures per page stay under the budget because a successful page
	// resets the counter.
	batch := readBatch(t, res.BatchPaths[0])
	if len(batch.Categories["dairy"]) != 2 {
		t.Errorf("dairy products = %d, want 2", len(batch.Categories["dairy"]))
	}
}

func TestAccessDeniedEscalatesWithoutBurningRetries(t *testing.T) {
	const remoteWS = "wss://brd.test/session"

	escalatedFails := 2
	p := &stubProvider{}
	p.open = func(url, remote string) (*stubSession, error) {
		if url == "https://acme.test/dairy" && remote == "" {
			return nil, &scrape.AccessDeniedError{URL: url, Status: 403}
		}
		if url == "https://acme.test/dairy" && escalatedFails > 0 {
			escalatedFails--
			return nil, errors.New("timeout")
		}
		if url == "https://acme.test/dairy" {
			return &stubSession{products: prods("Piens")}, nil
		}
		return &stubSession{products: prods("Maize")}, nil
	}

	c := newTestCrawler(t.TempDir(), p, acmeConfigs(), remoteWS)
	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The denied direct attempt was free: two generic failures afterwards
	// still leave room to succeed within the budget.
	batch := readBatch(t, res.BatchPaths[0])
	if len(batch.Categories["dairy"]) != 1 {
		t.Fatalf("dairy lost to escalation accounting: %+v", batch.Categories)
	}

	if p.calls[0].remote != "" {
		t.Errorf("first attempt should be direct, got %q", p.calls[0].remote)
	}
	for _, call := range p.calls[1:] {
		if call.remote != remoteWS {
			t.Errorf("post-escalation call to %s used remote %q, want %q", call.url, call.remote, remoteWS)
		}
	}
}

func TestEscalationResetsAfterAbandonedCategory(t *testing.T) {
	const remoteWS = "wss://brd.test/session"

	p := &stubProvider{}
	p.open = func(url, remote string) (*stubSession, error) {
		if url == "https://acme.test/dairy" {
			if remote == "" {
				return nil, &scrape.AccessDeniedError{URL: url, Status: 429}
			}
			return nil, errors.New("blocked upstream")
		}
		return &stubSession{products: prods("Maize")}, nil
	}

	c := newTestCrawler(t.TempDir(), p, acmeConfigs(), remoteWS)
	if _, err := c.Run(context.Background(), []string{"acme"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := p.calls[len(p.calls)-1]
	if last.url != "https://acme.test/bakery" || last.remote != "" {
		t.Errorf("bakery should start direct after dairy abandonment, got %+v", last)
	}
}

func TestResumeFromCheckpointSkipsFetchedPages(t *testing.T) {
	dir := t.TempDir()

	snapshots := checkpoint.New(dir, quiet())
	_, err := snapshots.Save(models.Checkpoint{
		DateTime:  time.Now(),
		StoreName: "acme",
		Categories: map[string][]models.Product{
			"dairy": prods("Piens", "Kefīrs"),
		},
		RemainingCategories: []models.CategoryRef{
			{RelativeLink: "/dairy?page=3", Category: "dairy"},
			{RelativeLink: "/bakery", Category: "bakery"},
		},
	})
	if err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		switch url {
		case "https://acme.test/dairy?page=3":
			return &stubSession{products: prods("Siers")}, nil
		case "https://acme.test/bakery":
			return &stubSession{products: prods("Maize")}, nil
		default:
			return nil, errors.New("re-fetched already crawled page: " + url)
		}
	}

	c := newTestCrawler(dir, p, acmeConfigs(), "")
	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, call := range p.calls {
		if call.url == "https://acme.test/dairy" {
			t.Errorf("resumed crawl re-fetched page 1 of dairy")
		}
	}

	batch := readBatch(t, res.BatchPaths[0])
	if len(batch.Categories["dairy"]) != 3 {
		t.Errorf("resumed dairy products = %d, want 3 (2 checkpointed + 1 new)", len(batch.Categories["dairy"]))
	}
	if len(batch.Categories["bakery"]) != 1 {
		t.Errorf("bakery products = %d, want 1", len(batch.Categories["bakery"]))
	}
}

func TestStoreFailureDoesNotStopRemainingStores(t *testing.T) {
	cfgs := map[string]stores.Config{
		"broken": {BaseURL: "https://broken.test", Categories: []models.CategoryRef{{RelativeLink: "/a", Category: "a"}}},
		"acme": {BaseURL: "https://acme.test", Categories: []models.CategoryRef{
			{RelativeLink: "/bakery", Category: "bakery"},
		}},
	}

	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		return &stubSession{products: prods("Maize")}, nil
	}

	// Only acme has an extractor; broken must fail without aborting the run.
	reg := scrape.NewRegistry()
	reg.Register("acme", stubExtractor{})

	c := New(Options{
		Configs:    cfgs,
		Registry:   reg,
		Provider:   p,
		Snapshots:  checkpoint.New(t.TempDir(), quiet()),
		RetryDelay: time.Millisecond,
		Logger:     quiet(),
	})

	res, err := c.Run(context.Background(), []string{"broken", "acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.BatchPaths) != 1 {
		t.Fatalf("expected acme batch only, got %v", res.BatchPaths)
	}
}

func TestCheckpointWriteFailureFailsStore(t *testing.T) {
	// Pointing the output dir at an existing file makes every write fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &stubProvider{}
	p.open = func(url, _ string) (*stubSession, error) {
		return &stubSession{products: prods("Piens")}, nil
	}

	reg := scrape.NewRegistry()
	reg.Register("acme", stubExtractor{})
	c := New(Options{
		Configs:    acmeConfigs(),
		Registry:   reg,
		Provider:   p,
		Snapshots:  checkpoint.New(blocked, quiet()),
		RetryDelay: time.Millisecond,
		Logger:     quiet(),
	})

	res, err := c.Run(context.Background(), []string{"acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.BatchPaths) != 0 {
		t.Errorf("store with undurable progress must not produce a batch, got %v", res.BatchPaths)
	}
}
