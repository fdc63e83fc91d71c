package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds catalog watcher configuration.
type Config struct {
	BaseURL         string
	CatalogPath     string
	ListPath        string
	TermCode        string // optional override; empty means discover latest
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	DataDir         string
	MaxFeedItems    int
	UserAgent       string
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns defaults matching the live catalog deployment.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://mysis-fccollege.empower-xl.com",
		CatalogPath:     "/fusebox.cfm?fuseaction=CourseCatalog&rpt=1",
		ListPath:        "/cfcs/courseCatalog.cfc?method=GetList",
		TermCode:        "",
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		DataDir:         "course_data",
		MaxFeedItems:    50,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// CatalogURL returns the absolute catalog page URL.
func (c *Config) CatalogURL() string {
	return c.BaseURL + c.CatalogPath
}

// ListURL returns the absolute grid-list endpoint URL.
func (c *Config) ListURL() string {
	return c.BaseURL + c.ListPath
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.CatalogPath == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}
	if c.ListPath == "" {
		return fmt.Errorf("list path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.MaxFeedItems <= 0 {
		return fmt.Errorf("max feed items must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString reads a string environment variable.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
