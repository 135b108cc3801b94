package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for bookharvest.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"    yaml:"site"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Parser  ParserConfig  `mapstructure:"parser"  yaml:"parser"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SiteConfig locates the listing and detail pages.
type SiteConfig struct {
	BaseURL      string `mapstructure:"base_url"      yaml:"base_url"`
	IndexPath    string `mapstructure:"index_path"    yaml:"index_path"`
	PagePathTmpl string `mapstructure:"page_path_tmpl" yaml:"page_path_tmpl"` // fmt template taking the page number
}

// EngineConfig controls the scrape drivers.
type EngineConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"     yaml:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	PaginationMode  string        `mapstructure:"pagination_mode"  yaml:"pagination_mode"` // count or next
	MaxPages        int           `mapstructure:"max_pages"        yaml:"max_pages"`       // 0 = no limit
	SkipEnrich      bool          `mapstructure:"skip_enrich"      yaml:"skip_enrich"`
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"` // browser fetcher only
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// ParserConfig holds the selectors used against the site markup.
type ParserConfig struct {
	BookSelector     string `mapstructure:"book_selector"     yaml:"book_selector"`
	TitleSelector    string `mapstructure:"title_selector"    yaml:"title_selector"`
	AuthorSelector   string `mapstructure:"author_selector"   yaml:"author_selector"`
	AuthorMarker     string `mapstructure:"author_marker"     yaml:"author_marker"`
	PageNumberXPath  string `mapstructure:"page_number_xpath" yaml:"page_number_xpath"`
	NextPageSelector string `mapstructure:"next_page_selector" yaml:"next_page_selector"`
	DescriptionSel   string `mapstructure:"description_selector" yaml:"description_selector"`
	GenreSelector    string `mapstructure:"genre_selector"    yaml:"genre_selector"`
	DownloadSelector string `mapstructure:"download_selector" yaml:"download_selector"`
	GenreSeparator   string `mapstructure:"genre_separator"   yaml:"genre_separator"`
}

// StorageConfig controls checkpoint output.
type StorageConfig struct {
	Formats    []string    `mapstructure:"formats"     yaml:"formats"` // csv, jsonl, mongodb
	OutputPath string      `mapstructure:"output_path" yaml:"output_path"`
	FilePrefix string      `mapstructure:"file_prefix" yaml:"file_prefix"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig configures the optional MongoDB sink.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SlogLevel maps Level to a slog level. Matching ignores case and accepts
// "warning" for "warn".
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug/info/warn/error, got %q", l.Level)
	}
}

// DefaultConfig returns a Config matching the lectulandia site layout.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:      "https://www.lectulandia.co",
			IndexPath:    "/book/",
			PagePathTmpl: "/book/page/%d/",
		},
		Engine: EngineConfig{
			RequestTimeout: 50 * time.Second,
			MaxAttempts:    5,
			PaginationMode: "count",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
		},
		Proxy: ProxyConfig{
			Rotation: "round_robin",
		},
		Parser: ParserConfig{
			BookSelector:     "article.card",
			TitleSelector:    "a.title",
			AuthorSelector:   "div.subdetail a",
			AuthorMarker:     "autor",
			PageNumberXPath:  "//a[contains(concat(' ', normalize-space(@class), ' '), ' page-numbers ')]",
			NextPageSelector: "a.next",
			DescriptionSel:   "div#sinopsis",
			GenreSelector:    "div#genero",
			DownloadSelector: "div#downloadContainer",
			GenreSeparator:   " / ",
		},
		Storage: StorageConfig{
			Formats:    []string{"csv"},
			OutputPath: "data/raw_data",
			FilePrefix: "book_data",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "bookharvest",
				Collection: "books",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// IndexURL returns the first listing page URL.
func (s SiteConfig) IndexURL() string {
	return s.BaseURL + s.IndexPath
}
