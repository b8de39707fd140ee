package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Config struct {
	OutputDir string
	StoresDir string

	// Remote browser WebSocket endpoint used once escalation triggers.
	RemoteBrowserWS string
	// Optional proxy pool for direct (non-escalated) browser launches.
	ProxyList []string

	NavTimeout time.Duration
	MaxRetries int

	Log struct {
		Level  string
		Format string
	}

	DB DB
}

// Load reads configuration from the environment. OUTPUT_DIR is the only
// universally required option; DB settings are validated separately because
// the scrape path never touches the database.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.OutputDir = strings.TrimSpace(os.Getenv("OUTPUT_DIR"))
	cfg.StoresDir = strings.TrimSpace(os.Getenv("STORES_DIR"))
	cfg.RemoteBrowserWS = strings.TrimSpace(os.Getenv("BRD_CONFIG"))

	if raw := os.Getenv("PROXY_LIST"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.ProxyList = append(cfg.ProxyList, p)
			}
		}
	}

	cfg.NavTimeout = time.Duration(envInt("NAV_TIMEOUT_SECONDS", 60)) * time.Second
	cfg.MaxRetries = envInt("MAX_RETRIES", 3)

	cfg.Log.Level = os.Getenv("LOG_LEVEL")
	cfg.Log.Format = os.Getenv("LOG_FORMAT")

	cfg.DB.Host = os.Getenv("DB_HOST")
	cfg.DB.Port = envInt("DB_PORT", 5432)
	cfg.DB.User = os.Getenv("DB_USER")
	cfg.DB.Password = os.Getenv("DB_PASSWORD")
	cfg.DB.Name = os.Getenv("DB_NAME")
	cfg.DB.SSLMode = os.Getenv("DB_SSLMODE")

	applyDefaults(cfg)

	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("OUTPUT_DIR must be set")
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.StoresDir == "" {
		cfg.StoresDir = "./stores"
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
}

// ValidateDB reports whether enough is configured to open a connection.
func (c *Config) ValidateDB() error {
	var missing []string
	if c.DB.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DB.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DB.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing database configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (d DB) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
