// Package stores loads per-store crawl configuration. Each store lives in
// its own subdirectory of the stores dir with a config.yaml naming the base
// URL and the ordered category list.
package stores

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pricecrawler/internal/domain/models"
)

type Config struct {
	BaseURL    string               `yaml:"base_url"`
	Categories []models.CategoryRef `yaml:"categories"`
}

// Resolve makes a relative category or next-page link absolute against the
// store's base URL. Already-absolute links pass through unchanged.
func (c Config) Resolve(link string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", c.BaseURL, err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// LoadConfigs reads every store subdirectory. A store with a malformed
// config is logged and skipped; it must not block the others.
func LoadConfigs(dir string, log *slog.Logger) (map[string]Config, error) {
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read stores dir %s: %w", dir, err)
	}

	configs := make(map[string]Config)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name, "config.yaml")

		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn("store has no config.yaml", "store", name)
				continue
			}
			log.Error("read store config failed", "store", name, "err", err)
			continue
		}

		var cfg Config
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			log.Error("parse store config failed", "store", name, "err", err)
			continue
		}
		if cfg.BaseURL == "" {
			log.Error("store config missing base_url", "store", name)
			continue
		}
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			log.Error("store config base_url invalid", "store", name, "err", err)
			continue
		}

		configs[name] = cfg
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("no usable store configs under %s", dir)
	}
	return configs, nil
}
