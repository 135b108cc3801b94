package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}
	if !strings.Contains(cfg.Site.PagePathTmpl, "%d") {
		return fmt.Errorf("site.page_path_tmpl must contain %%d, got %q", cfg.Site.PagePathTmpl)
	}

	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be >= 1, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.RetryDelay < 0 {
		return fmt.Errorf("engine.retry_delay must be >= 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.PaginationMode != "count" && cfg.Engine.PaginationMode != "next" {
		return fmt.Errorf("engine.pagination_mode must be 'count' or 'next', got %q", cfg.Engine.PaginationMode)
	}
	if cfg.Engine.MaxPages < 0 {
		return fmt.Errorf("engine.max_pages must be >= 0, got %d", cfg.Engine.MaxPages)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Parser.BookSelector == "" || cfg.Parser.TitleSelector == "" {
		return fmt.Errorf("parser.book_selector and parser.title_selector are required")
	}
	if cfg.Parser.DescriptionSel == "" || cfg.Parser.GenreSelector == "" || cfg.Parser.DownloadSelector == "" {
		return fmt.Errorf("parser detail selectors are required")
	}

	if len(cfg.Storage.Formats) == 0 {
		return fmt.Errorf("storage.formats must list at least one format")
	}
	validFormats := map[string]bool{
		"csv": true, "jsonl": true, "mongodb": true,
	}
	for _, f := range cfg.Storage.Formats {
		if !validFormats[f] {
			return fmt.Errorf("storage format %q is not supported (valid: csv, jsonl, mongodb)", f)
		}
	}
	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must not be empty")
	}

	if _, err := cfg.Logging.SlogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(cfg.Logging.Format); f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
