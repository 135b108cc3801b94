package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/engine"
	"github.com/IshaanNene/bookharvest/internal/fetcher"
	"github.com/IshaanNene/bookharvest/internal/storage"
	"github.com/IshaanNene/bookharvest/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	formats     string
	maxPages    int
	skipEnrich  bool
	timeout     string
	paginate    string
	fetcherType string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookharvest",
		Short: "bookharvest scrapes book metadata from lectulandia",
		Long: `bookharvest walks the lectulandia book listing, collects author, title and
detail link for every book, then visits each detail page for its synopsis,
genres and download links.

Two checkpoints are written to the output directory:
  book_data_initial.csv   listing rows only
  book_data_final.csv     listing rows plus detail columns`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(enrichCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addRunFlags registers the flags shared by the commands that hit the site.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "checkpoint output directory")
	cmd.Flags().StringVarP(&formats, "format", "f", "", "comma-separated output formats (csv, jsonl, mongodb)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "per-request timeout (e.g. 50s)")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type (http, browser)")
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the listing and enrich every book",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(false)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().IntVar(&maxPages, "pages", 0, "maximum listing pages to scrape (0 = all)")
	cmd.Flags().BoolVar(&skipEnrich, "skip-enrich", false, "stop after the initial checkpoint")
	cmd.Flags().StringVar(&paginate, "pagination", "", "pagination mode (count, next)")
	return cmd
}

// listingCmd creates the "listing" subcommand, which writes only the
// initial checkpoint.
func listingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Scrape the listing pages only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(true)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().IntVar(&maxPages, "pages", 0, "maximum listing pages to scrape (0 = all)")
	cmd.Flags().StringVar(&paginate, "pagination", "", "pagination mode (count, next)")
	return cmd
}

// enrichCmd creates the "enrich" subcommand, which resumes from an initial
// checkpoint file.
func enrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich <initial.csv>",
		Short: "Enrich the rows of an existing initial checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(args[0])
		},
	}
	addRunFlags(cmd)
	return cmd
}

func runScrape(listingOnly bool) error {
	cfg, logger, err := prepare()
	if err != nil {
		return err
	}
	if listingOnly {
		cfg.Engine.SkipEnrich = true
	}

	eng, closeFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	ctx, stop := signalContext()
	defer stop()

	logger.Info("starting scrape",
		"site", cfg.Site.IndexURL(),
		"pagination", cfg.Engine.PaginationMode,
		"formats", cfg.Storage.Formats,
		"skip_enrich", cfg.Engine.SkipEnrich,
	)

	_, runErr := eng.Run(ctx)
	printSummary(cfg, logger, eng.Stats().Snapshot(), checkpointsFor(cfg))
	return reportRunError(logger, runErr)
}

func runEnrich(path string) error {
	cfg, logger, err := prepare()
	if err != nil {
		return err
	}

	records, err := storage.ReadCSV(path)
	if err != nil {
		return fmt.Errorf("read initial checkpoint: %w", err)
	}
	logger.Info("loaded initial checkpoint", "path", path, "rows", len(records))

	eng, closeFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	ctx, stop := signalContext()
	defer stop()

	_, runErr := eng.EnrichTable(ctx, types.NewTable(records))
	printSummary(cfg, logger, eng.Stats().Snapshot(), []string{storage.CheckpointFinal})
	return reportRunError(logger, runErr)
}

// prepare loads and validates configuration and builds the logger.
func prepare() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyCLIOverrides(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}
	closeFetcher := func() {
		if err := f.Close(); err != nil {
			logger.Warn("fetcher close failed", "error", err)
		}
	}

	eng, err := engine.New(cfg, f, logger, engine.WithProgress(os.Stdout))
	if err != nil {
		closeFetcher()
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}
	return eng, closeFetcher, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func reportRunError(logger *slog.Logger, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		logger.Warn("scrape interrupted, partial checkpoint written", "error", err)
		return err
	default:
		logger.Error("scrape failed", "error", err)
		return err
	}
}

func checkpointsFor(cfg *config.Config) []string {
	if cfg.Engine.SkipEnrich {
		return []string{storage.CheckpointInitial}
	}
	return []string{storage.CheckpointInitial, storage.CheckpointFinal}
}

func printSummary(cfg *config.Config, logger *slog.Logger, s engine.StatsSnapshot, checkpoints []string) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Scrape summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Pages", fmt.Sprintf("%d scraped, %d skipped of %d", s.PagesScraped, s.PagesSkipped, s.PagesTotal)},
		{"Books listed", s.BooksListed},
		{"Rows enriched", s.RowsEnriched},
		{"Rows failed", s.RowsFailed},
		{"Fetch attempts", s.FetchAttempts},
		{"Elapsed", s.Elapsed.Round(time.Millisecond)},
	})
	t.AppendSeparator()
	cp := storage.NewCheckpointer(&cfg.Storage, logger)
	for _, name := range checkpoints {
		for _, p := range cp.Paths(name) {
			t.AppendRow(table.Row{"Output", p})
		}
	}
	fmt.Println()
	t.Render()
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bookharvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Section", "Setting", "Value"})
			t.AppendRows([]table.Row{
				{"site", "base_url", cfg.Site.BaseURL},
				{"site", "index_path", cfg.Site.IndexPath},
				{"site", "page_path_tmpl", cfg.Site.PagePathTmpl},
			})
			t.AppendSeparator()
			t.AppendRows([]table.Row{
				{"engine", "request_timeout", cfg.Engine.RequestTimeout},
				{"engine", "max_attempts", cfg.Engine.MaxAttempts},
				{"engine", "retry_delay", cfg.Engine.RetryDelay},
				{"engine", "politeness_delay", cfg.Engine.PolitenessDelay},
				{"engine", "pagination_mode", cfg.Engine.PaginationMode},
				{"engine", "max_pages", cfg.Engine.MaxPages},
				{"engine", "skip_enrich", cfg.Engine.SkipEnrich},
				{"engine", "user_agents", fmt.Sprintf("%d configured", len(cfg.Engine.UserAgents))},
			})
			t.AppendSeparator()
			t.AppendRows([]table.Row{
				{"fetcher", "type", cfg.Fetcher.Type},
				{"fetcher", "stealth", cfg.Fetcher.Stealth},
				{"fetcher", "max_body_size", cfg.Fetcher.MaxBodySize},
				{"proxy", "enabled", cfg.Proxy.Enabled},
				{"proxy", "count", len(cfg.Proxy.URLs)},
			})
			t.AppendSeparator()
			t.AppendRows([]table.Row{
				{"storage", "formats", strings.Join(cfg.Storage.Formats, ",")},
				{"storage", "output_path", cfg.Storage.OutputPath},
				{"storage", "file_prefix", cfg.Storage.FilePrefix},
				{"logging", "level", cfg.Logging.Level},
				{"logging", "format", cfg.Logging.Format},
			})
			t.Render()
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	// Validate has already rejected unknown levels.
	level, _ := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) error {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if formats != "" {
		var list []string
		for _, f := range strings.Split(formats, ",") {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
				list = append(list, f)
			}
		}
		cfg.Storage.Formats = list
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", timeout, err)
		}
		cfg.Engine.RequestTimeout = d
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if maxPages > 0 {
		cfg.Engine.MaxPages = maxPages
	}
	if skipEnrich {
		cfg.Engine.SkipEnrich = true
	}
	if paginate != "" {
		cfg.Engine.PaginationMode = strings.ToLower(paginate)
	}
	return nil
}
