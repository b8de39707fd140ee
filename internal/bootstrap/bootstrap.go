// Package bootstrap assembles the crawl pipeline from configuration: the
// extractor registry, the browser session provider, the checkpoint store and
// the orchestrator.
package bootstrap

import (
	"log/slog"

	"pricecrawler/internal/browser"
	"pricecrawler/internal/checkpoint"
	"pricecrawler/internal/config"
	"pricecrawler/internal/crawler"
	"pricecrawler/internal/scrape"
	"pricecrawler/internal/stores"
	"pricecrawler/internal/stores/barbora"
	"pricecrawler/internal/stores/cesars"
	"pricecrawler/internal/stores/gemoss"
	"pricecrawler/internal/stores/rimi"
)

// BuildRegistry wires up every known store extractor. Resolved once at
// startup, never per page.
func BuildRegistry() *scrape.Registry {
	r := scrape.NewRegistry()
	r.Register("barbora", barbora.New())
	r.Register("rimi", rimi.New())
	r.Register("cesars", cesars.New())
	r.Register("gemoss", gemoss.New())
	return r
}

func BuildCrawler(cfg *config.Config, storeConfigs map[string]stores.Config, registry *scrape.Registry, log *slog.Logger) *crawler.Crawler {
	if cfg.RemoteBrowserWS == "" {
		log.Warn("BRD_CONFIG not set, escalation to a remote browser is disabled")
	}

	return crawler.New(crawler.Options{
		Configs:         storeConfigs,
		Registry:        registry,
		Provider:        browser.NewProvider(log, cfg.ProxyList),
		Snapshots:       checkpoint.New(cfg.OutputDir, log),
		RemoteBrowserWS: cfg.RemoteBrowserWS,
		NavTimeout:      cfg.NavTimeout,
		MaxRetries:      cfg.MaxRetries,
		Logger:          log,
	})
}
