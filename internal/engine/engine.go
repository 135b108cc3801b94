package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/fetcher"
	"github.com/IshaanNene/bookharvest/internal/parser"
	"github.com/IshaanNene/bookharvest/internal/pipeline"
	"github.com/IshaanNene/bookharvest/internal/storage"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// Checkpointer persists a table snapshot under a checkpoint name.
type Checkpointer interface {
	Save(checkpoint string, table types.Table) error
}

// Pipeline normalizes records before they enter the table.
type Pipeline interface {
	Process(rec types.BookRecord) (types.BookRecord, error)
}

// Engine drives a scrape: listing pagination, then per-book enrichment.
// It is strictly sequential; one request is in flight at a time.
type Engine struct {
	cfg          *config.Config
	logger       *slog.Logger
	retrier      *fetcher.Retrier
	listing      *parser.ListingParser
	detail       *parser.DetailParser
	counter      *parser.PageCounter
	pipeline     Pipeline
	checkpointer Checkpointer
	progress     io.Writer
	stats        *Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress sets where progress percentages are written.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// WithCheckpointer overrides the storage.Checkpointer built from config.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// WithPipeline overrides the default record pipeline.
func WithPipeline(p Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// New creates an Engine fetching through f.
func New(cfg *config.Config, f fetcher.Fetcher, logger *slog.Logger, opts ...Option) (*Engine, error) {
	listing, err := parser.NewListingParser(cfg.Parser, cfg.Site.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("listing parser: %w", err)
	}
	detail, err := parser.NewDetailParser(cfg.Parser, cfg.Site.BaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("detail parser: %w", err)
	}

	if cfg.Engine.PolitenessDelay > 0 {
		f = throttledFetcher{Fetcher: f, throttle: NewThrottle(cfg.Engine.PolitenessDelay)}
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger.With("component", "engine"),
		retrier:      fetcher.NewRetrier(f, cfg.Engine.MaxAttempts, cfg.Engine.RetryDelay, logger),
		listing:      listing,
		detail:       detail,
		counter:      parser.NewPageCounter(cfg.Parser, logger),
		pipeline:     pipeline.Default(logger),
		checkpointer: storage.NewCheckpointer(&cfg.Storage, logger),
		progress:     io.Discard,
		stats:        &Stats{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Stats returns the run statistics.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Run scrapes the listing, saves the initial checkpoint, enriches every row
// and saves the final checkpoint. When ctx is cancelled the rows gathered so
// far are still written to the checkpoint of the current phase and the
// context error is returned.
func (e *Engine) Run(ctx context.Context) (types.Table, error) {
	e.stats.StartTime = time.Now()

	table, err := e.ScrapeListing(ctx)
	if err != nil {
		if ctx.Err() != nil && table.Len() > 0 {
			if serr := e.checkpointer.Save(storage.CheckpointInitial, table); serr != nil {
				return table, errors.Join(err, serr)
			}
		}
		return table, err
	}
	if err := e.checkpointer.Save(storage.CheckpointInitial, table); err != nil {
		return table, err
	}

	if e.cfg.Engine.SkipEnrich {
		e.logger.Info("enrichment skipped", e.stats.Snapshot().LogAttrs()...)
		return table, nil
	}

	return e.EnrichTable(ctx, table)
}

// EnrichTable enriches table, applies the updates and saves the final
// checkpoint.
func (e *Engine) EnrichTable(ctx context.Context, table types.Table) (types.Table, error) {
	if e.stats.StartTime.IsZero() {
		e.stats.StartTime = time.Now()
	}

	updates, enrichErr := e.Enrich(ctx, table)
	enriched := table.Apply(updates)

	if err := e.checkpointer.Save(storage.CheckpointFinal, enriched); err != nil {
		return enriched, errors.Join(enrichErr, err)
	}

	e.logger.Info("run finished", e.stats.Snapshot().LogAttrs()...)
	return enriched, enrichErr
}

// ScrapeListing determines the page count and collects the books of every
// listing page in order. Pages that fail after retries are skipped; failure
// to fetch the first listing page aborts.
func (e *Engine) ScrapeListing(ctx context.Context) (types.Table, error) {
	if e.stats.StartTime.IsZero() {
		e.stats.StartTime = time.Now()
	}

	var (
		table types.Table
		err   error
	)
	if e.cfg.Engine.PaginationMode == "next" {
		table, err = e.scrapeFollowingNext(ctx)
	} else {
		table, err = e.scrapeCounted(ctx)
	}
	if err != nil {
		return table, err
	}

	fmt.Fprintf(e.progress, "\nTotal Books Scraped: %d\n", table.Len())
	e.logger.Info("listing scraped",
		"books", table.Len(),
		"pages", e.stats.PagesScraped.Load(),
		"skipped", e.stats.PagesSkipped.Load(),
	)
	return table, nil
}

func (e *Engine) scrapeCounted(ctx context.Context) (types.Table, error) {
	total, err := e.countPages(ctx)
	if err != nil {
		return types.Table{}, err
	}
	if limit := e.cfg.Engine.MaxPages; limit > 0 && total > limit {
		e.logger.Info("limiting pages", "advertised", total, "max_pages", limit)
		total = limit
	}
	e.stats.PagesTotal.Store(int64(total))
	fmt.Fprintf(e.progress, "Scraping Information from %d Pages.\n", total)

	table := types.NewTable(nil)
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return table, err
		}

		books, err := e.scrapePage(ctx, page)
		switch {
		case err == nil:
			table = table.Append(books...)
		case ctx.Err() != nil:
			return table, ctx.Err()
		default:
			e.skipPage(page, err)
		}

		fmt.Fprintf(e.progress, "\r%d%% Page: %d", page*100/total, page)
	}
	return table, nil
}

func (e *Engine) scrapeFollowingNext(ctx context.Context) (types.Table, error) {
	table := types.NewTable(nil)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return table, err
		}
		if limit := e.cfg.Engine.MaxPages; limit > 0 && page > limit {
			break
		}

		var hasNext bool
		req, err := e.newRequest(e.pageURL(page), types.TagListing)
		if err != nil {
			return table, err
		}
		req.Page = page

		var books []types.BookRecord
		attempts, err := e.retrier.Do(ctx, req, fetcher.ListingPolicy, func(resp *types.Response) error {
			var perr error
			if books, perr = e.listing.Parse(resp); perr != nil {
				return perr
			}
			hasNext, perr = e.counter.HasNext(resp)
			return perr
		})
		e.stats.FetchAttempts.Add(int64(attempts))

		if err != nil {
			if ctx.Err() != nil {
				return table, ctx.Err()
			}
			if page == 1 {
				return table, fmt.Errorf("fetch first listing page: %w", err)
			}
			// Without the page there is no next link to follow.
			e.skipPage(page, err)
			break
		}

		e.stats.PagesTotal.Add(1)
		e.stats.PagesScraped.Add(1)
		e.stats.BooksListed.Add(int64(len(books)))
		table = table.Append(e.normalize(books)...)
		fmt.Fprintf(e.progress, "\rPage: %d", page)

		if len(books) == 0 || !hasNext {
			break
		}
	}
	return table, nil
}

// countPages fetches the index page and reads the page count from it.
func (e *Engine) countPages(ctx context.Context) (int, error) {
	req, err := e.newRequest(e.cfg.Site.IndexURL(), types.TagIndex)
	if err != nil {
		return 0, err
	}

	var total int
	attempts, err := e.retrier.Do(ctx, req, fetcher.ListingPolicy, func(resp *types.Response) error {
		n, cerr := e.counter.Count(resp)
		total = n
		return cerr
	})
	e.stats.FetchAttempts.Add(int64(attempts))
	if err != nil {
		return 0, fmt.Errorf("fetch first listing page: %w", err)
	}

	e.logger.Info("page count determined", "pages", total)
	return total, nil
}

// scrapePage fetches and parses one listing page.
func (e *Engine) scrapePage(ctx context.Context, page int) ([]types.BookRecord, error) {
	req, err := e.newRequest(e.pageURL(page), types.TagListing)
	if err != nil {
		return nil, err
	}
	req.Page = page

	var books []types.BookRecord
	attempts, err := e.retrier.Do(ctx, req, fetcher.ListingPolicy, func(resp *types.Response) error {
		var perr error
		books, perr = e.listing.Parse(resp)
		return perr
	})
	e.stats.FetchAttempts.Add(int64(attempts))
	if err != nil {
		return nil, err
	}

	e.stats.PagesScraped.Add(1)
	e.stats.BooksListed.Add(int64(len(books)))
	e.logger.Debug("page scraped", "page", page, "books", len(books), "attempts", attempts)
	return e.normalize(books), nil
}

func (e *Engine) skipPage(page int, err error) {
	e.stats.PagesSkipped.Add(1)
	e.logger.Warn("skipping listing page", "page", page, "url", e.pageURL(page), "error", err)
}

// Enrich visits every row's detail page in table order and returns the
// enriched records keyed by row ID. Rows that fail after retries are absent
// from the result and keep their current values. On cancellation the
// updates gathered so far are returned with the context error.
func (e *Engine) Enrich(ctx context.Context, table types.Table) (map[int]types.BookRecord, error) {
	records := table.Records()
	updates := make(map[int]types.BookRecord, len(records))
	total := len(records)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return updates, err
		}

		updated, err := e.enrichRow(ctx, rec)
		switch {
		case err == nil:
			updates[rec.ID] = updated
			e.stats.RowsEnriched.Add(1)
		case ctx.Err() != nil:
			return updates, ctx.Err()
		default:
			e.stats.RowsFailed.Add(1)
			e.logger.Warn("row left unenriched", "row", rec.ID, "url", rec.Website, "error", err)
		}

		fmt.Fprintf(e.progress, "\rProcessing %d%% Book: %d", (i+1)*100/total, i+1)
	}
	if total > 0 {
		fmt.Fprintln(e.progress)
	}
	return updates, nil
}

// enrichRow fetches and parses one row's detail page. The returned record
// has been through the pipeline.
func (e *Engine) enrichRow(ctx context.Context, rec types.BookRecord) (types.BookRecord, error) {
	req, err := e.newRequest(rec.Website, types.TagDetail)
	if err != nil {
		return rec, err
	}
	req.RowID = rec.ID

	var detail parser.Detail
	attempts, err := e.retrier.Do(ctx, req, fetcher.DetailPolicy, func(resp *types.Response) error {
		var perr error
		detail, perr = e.detail.Parse(resp)
		return perr
	})
	e.stats.FetchAttempts.Add(int64(attempts))
	if err != nil {
		return rec, err
	}

	return e.process(detail.ApplyTo(rec)), nil
}

// normalize runs listing records through the pipeline.
func (e *Engine) normalize(books []types.BookRecord) []types.BookRecord {
	out := make([]types.BookRecord, len(books))
	for i, b := range books {
		out[i] = e.process(b)
	}
	return out
}

func (e *Engine) process(rec types.BookRecord) types.BookRecord {
	processed, err := e.pipeline.Process(rec)
	if err != nil {
		e.logger.Warn("pipeline error, keeping record as parsed", "title", rec.Title, "error", err)
		return rec
	}
	return processed
}

func (e *Engine) pageURL(page int) string {
	return e.cfg.Site.BaseURL + fmt.Sprintf(e.cfg.Site.PagePathTmpl, page)
}

func (e *Engine) newRequest(rawURL, tag string) (*types.Request, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Tag = tag
	return req, nil
}
