package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"pricecrawler/internal/bootstrap"
	"pricecrawler/internal/config"
	"pricecrawler/internal/logger"
	"pricecrawler/internal/stores"
)

func main() {
	var (
		mode      = flag.String("mode", "interactive", "interactive|auto")
		storesDir = flag.String("stores", "", "override stores dir (optional)")
		outputDir = flag.String("out", "", "override output dir (optional)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if *storesDir != "" {
		cfg.StoresDir = *storesDir
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	storeConfigs, err := stores.LoadConfigs(cfg.StoresDir, log)
	if err != nil {
		log.Error("load store configs failed", "err", err)
		os.Exit(1)
	}

	registry := bootstrap.BuildRegistry()

	// A configured store without a registered extractor is unusable.
	var names []string
	for name := range storeConfigs {
		if _, err := registry.Lookup(name); err != nil {
			log.Warn("skipping store", "store", name, "err", err)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		log.Error("no scrapeable stores configured")
		os.Exit(1)
	}

	var selected []string
	switch *mode {
	case "auto":
		selected = names
	case "interactive":
		store, err := selectStore(names)
		if err != nil {
			log.Error("store selection failed", "err", err)
			os.Exit(1)
		}
		selected = []string{store}
	default:
		log.Error("unknown mode (expected interactive|auto)", "mode", *mode)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cr := bootstrap.BuildCrawler(cfg, storeConfigs, registry, log)
	res, err := cr.Run(ctx, selected)
	if err != nil {
		log.Error("crawl interrupted", "err", err)
		os.Exit(1)
	}

	log.Info("crawl finished",
		"stores", len(selected),
		"batches", len(res.BatchPaths),
		"paths", strings.Join(res.BatchPaths, ", "),
	)
}

func selectStore(names []string) (string, error) {
	fmt.Println("Select the e-store to scrape:")
	for i, n := range names {
		fmt.Printf("  %d) %s\n", i+1, n)
	}
	fmt.Print("> ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 1 || idx > len(names) {
		return "", fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	return names[idx-1], nil
}
