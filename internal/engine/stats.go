package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks scrape progress. Counters are safe to read while a run is in
// progress.
type Stats struct {
	PagesTotal    atomic.Int64
	PagesScraped  atomic.Int64
	PagesSkipped  atomic.Int64
	BooksListed   atomic.Int64
	RowsEnriched  atomic.Int64
	RowsFailed    atomic.Int64
	FetchAttempts atomic.Int64
	StartTime     time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	PagesTotal    int64
	PagesScraped  int64
	PagesSkipped  int64
	BooksListed   int64
	RowsEnriched  int64
	RowsFailed    int64
	FetchAttempts int64
	Elapsed       time.Duration
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() StatsSnapshot {
	var elapsed time.Duration
	if !s.StartTime.IsZero() {
		elapsed = time.Since(s.StartTime)
	}
	return StatsSnapshot{
		PagesTotal:    s.PagesTotal.Load(),
		PagesScraped:  s.PagesScraped.Load(),
		PagesSkipped:  s.PagesSkipped.Load(),
		BooksListed:   s.BooksListed.Load(),
		RowsEnriched:  s.RowsEnriched.Load(),
		RowsFailed:    s.RowsFailed.Load(),
		FetchAttempts: s.FetchAttempts.Load(),
		Elapsed:       elapsed,
	}
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s StatsSnapshot) LogAttrs() []any {
	return []any{
		"pages_total", s.PagesTotal,
		"pages_scraped", s.PagesScraped,
		"pages_skipped", s.PagesSkipped,
		"books_listed", s.BooksListed,
		"rows_enriched", s.RowsEnriched,
		"rows_failed", s.RowsFailed,
		"fetch_attempts", s.FetchAttempts,
		"elapsed", s.Elapsed.Round(time.Millisecond).String(),
	}
}
