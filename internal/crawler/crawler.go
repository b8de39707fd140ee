// Package crawler drives the store → category → page crawl. Progress is
// checkpointed after every page; failures are classified into retryable,
// escalation-worthy (access denied) and fatal-for-the-store (persistence).
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pricecrawler/internal/checkpoint"
	"pricecrawler/internal/domain/models"
	"pricecrawler/internal/scrape"
	"pricecrawler/internal/stores"
)

type Options struct {
	Configs   map[string]stores.Config
	Registry  *scrape.Registry
	Provider  scrape.Provider
	Snapshots *checkpoint.Store

	// Remote browser endpoint used once escalation triggers. Empty disables
	// escalation; access-denied failures then consume the retry budget.
	RemoteBrowserWS string

	NavTimeout time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

type Crawler struct {
	configs   map[string]stores.Config
	registry  *scrape.Registry
	provider  scrape.Provider
	snapshots *checkpoint.Store

	remoteWS   string
	navTimeout time.Duration
	maxRetries int
	retryDelay time.Duration

	log *slog.Logger
	now func() time.Time
}

func New(opts Options) *Crawler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}

	return &Crawler{
		configs:    opts.Configs,
		registry:   opts.Registry,
		provider:   opts.Provider,
		snapshots:  opts.Snapshots,
		remoteWS:   opts.RemoteBrowserWS,
		navTimeout: opts.NavTimeout,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		log:        opts.Logger,
		now:        time.Now,
	}
}

type Result struct {
	BatchPaths []string
}

// Run crawls the named stores in order. A store that fails is logged and
// skipped; the remaining stores are still attempted. Only context
// cancellation stops the run early.
func (c *Crawler) Run(ctx context.Context, storeNames []string) (Result, error) {
	var res Result
	for _, name := range storeNames {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		path, err := c.crawlStore(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.log.Error("store crawl failed", "store", name, "err", err)
			continue
		}
		res.BatchPaths = append(res.BatchPaths, path)
	}
	return res, nil
}

func (c *Crawler) crawlStore(ctx context.Context, name string) (string, error) {
	cfg, ok := c.configs[name]
	if !ok {
		return "", fmt.Errorf("no config for store %q", name)
	}
	ex, err := c.registry.Lookup(name)
	if err != nil {
		return "", err
	}

	cp, err := c.snapshots.Load(name)
	if err != nil {
		return "", err
	}

	accumulated := make(map[string][]models.Product)
	remaining := cfg.Categories
	if cp != nil {
		if cp.Categories != nil {
			accumulated = cp.Categories
		}
		if len(cp.RemainingCategories) > 0 {
			remaining = cp.RemainingCategories
		}
		c.log.Info("resuming from checkpoint",
			"store", name,
			"remaining_categories", len(remaining),
		)
	}

	c.log.Info("starting crawl", "store", name, "categories", len(remaining))

	escalated := false
	for i, cat := range remaining {
		if err := c.crawlCategory(ctx, name, cfg, ex, cat, remaining[i+1:], accumulated, &escalated); err != nil {
			return "", err
		}
	}

	batch := models.Batch{
		DateTime:   c.now(),
		StoreName:  name,
		Categories: accumulated,
	}
	path, err := c.snapshots.SaveBatch(batch)
	if err != nil {
		return "", fmt.Errorf("save batch: %w", err)
	}
	if err := c.snapshots.Remove(name); err != nil {
		c.log.Warn("remove checkpoint failed", "store", name, "err", err)
	}
	return path, nil
}

// crawlCategory walks one category's pages. A nil return means the category
// is done, whether drained or abandoned after exhausted retries; a non-nil
// error means progress can no longer be made durable and the store must
// stop.
func (c *Crawler) crawlCategory(
	ctx context.Context,
	storeName string,
	cfg stores.Config,
	ex scrape.Extractor,
	cat models.CategoryRef,
	rest []models.CategoryRef,
	accumulated map[string][]models.Product,
	escalated *bool,
) error {
	pageURL, err := cfg.Resolve(cat.RelativeLink)
	if err != nil {
		c.log.Error("category link unusable, skipping", "store", storeName, "category", cat.Category, "err", err)
		return nil
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		products, next, err := c.fetchPage(ctx, pageURL, ex, *escalated)
		if err != nil {
			if scrape.IsAccessDenied(err) && !*escalated && c.remoteWS != "" {
				// Escalation does not count against the retry budget.
				c.log.Warn("access denied, escalating to remote browser",
					"store", storeName, "category", cat.Category, "url", pageURL)
				*escalated = true
				attempts = 0
				continue
			}

			attempts++
			c.log.Error("page attempt failed",
				"store", storeName,
				"category", cat.Category,
				"url", pageURL,
				"attempt", attempts,
				"max_attempts", c.maxRetries,
				"err", err,
			)
			if attempts >= c.maxRetries {
				c.log.Error("category abandoned, retries exhausted",
					"store", storeName, "category", cat.Category, "url", pageURL)
				*escalated = false
				return nil
			}
			if err := sleepCtx(ctx, c.retryDelay); err != nil {
				return err
			}
			continue
		}

		accumulated[cat.Category] = append(accumulated[cat.Category], products...)

		// The checkpoint's head entry resumes at the next unfetched page, or
		// at the category's own link when this was the only/last page.
		resume := cat.RelativeLink
		if next != "" {
			resume = next
		}
		cp := models.Checkpoint{
			DateTime:   c.now(),
			StoreName:  storeName,
			Categories: accumulated,
			RemainingCategories: append(
				[]models.CategoryRef{{RelativeLink: resume, Category: cat.Category}},
				rest...,
			),
		}
		if _, err := c.snapshots.Save(cp); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}

		c.log.Info("page scraped",
			"store", storeName,
			"category", cat.Category,
			"count", len(products),
			"url", pageURL,
		)

		if next == "" {
			return nil
		}
		pageURL, err = cfg.Resolve(next)
		if err != nil {
			c.log.Error("next page link unusable, closing category",
				"store", storeName, "category", cat.Category, "link", next, "err", err)
			return nil
		}
		attempts = 0
	}
}

// fetchPage runs one attempt: open a session, extract, find the next page.
// The session is closed on every exit path.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string, ex scrape.Extractor, escalated bool) ([]models.Product, string, error) {
	remote := ""
	if escalated {
		remote = c.remoteWS
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.navTimeout)
	defer cancel()

	sess, err := c.provider.Open(attemptCtx, pageURL, remote)
	if err != nil {
		return nil, "", err
	}
	defer sess.Close()

	products, err := ex.ExtractProducts(sess)
	if err != nil {
		return nil, "", err
	}
	next, err := ex.NextPageLink(sess)
	if err != nil {
		return nil, "", err
	}
	return products, next, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
