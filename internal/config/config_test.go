package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "https://www.lectulandia.co/book/", cfg.Site.IndexURL())
	assert.Equal(t, 50*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, "data/raw_data", cfg.Storage.OutputPath)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/book/" }, "site.base_url"},
		{"page template", func(c *Config) { c.Site.PagePathTmpl = "/book/page/" }, "page_path_tmpl"},
		{"zero timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }, "request_timeout"},
		{"zero attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }, "max_attempts"},
		{"pagination mode", func(c *Config) { c.Engine.PaginationMode = "guess" }, "pagination_mode"},
		{"fetcher type", func(c *Config) { c.Fetcher.Type = "ftp" }, "fetcher.type"},
		{"storage format", func(c *Config) { c.Storage.Formats = []string{"xml"} }, "xml"},
		{"no formats", func(c *Config) { c.Storage.Formats = nil }, "storage.formats"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"proxy rotation", func(c *Config) {
			c.Proxy.Enabled = true
			c.Proxy.Rotation = "sticky"
		}, "proxy.rotation"},
		{"selectors", func(c *Config) { c.Parser.BookSelector = "" }, "book_selector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Logging.Level = tt.level
			require.NoError(t, Validate(cfg), "every level SlogLevel maps must validate")

			got, err := cfg.Logging.SlogLevel()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := LoggingConfig{Level: "loud"}.SlogLevel()
	assert.Error(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookharvest.yaml")
	yaml := strings.Join([]string{
		"engine:",
		"  request_timeout: 10s",
		"  max_pages: 3",
		"storage:",
		"  formats: [csv, jsonl]",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("BOOKHARVEST_ENGINE_MAX_ATTEMPTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 3, cfg.Engine.MaxPages)
	assert.Equal(t, 2, cfg.Engine.MaxAttempts)
	assert.Equal(t, []string{"csv", "jsonl"}, cfg.Storage.Formats)
	assert.Equal(t, "https://www.lectulandia.co", cfg.Site.BaseURL, "unset keys keep defaults")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/book/"))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("https://"))
}
