package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// ListingParser extracts book records from a listing page.
// Each record is read from one book container, so fields can never be
// paired with a neighbouring book's.
type ListingParser struct {
	cfg      config.ParserConfig
	resolver linkResolver
	logger   *slog.Logger
}

// NewListingParser creates a listing parser resolving links against baseURL.
func NewListingParser(cfg config.ParserConfig, baseURL string, logger *slog.Logger) (*ListingParser, error) {
	resolver, err := newLinkResolver(baseURL)
	if err != nil {
		return nil, err
	}
	return &ListingParser{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With("component", "listing_parser"),
	}, nil
}

// Parse returns the books on the page in document order. A page without
// books yields an empty slice and no error.
func (p *ListingParser) Parse(resp *types.Response) ([]types.BookRecord, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URLString(), Err: err}
	}

	containers := doc.Find(p.cfg.BookSelector)
	if containers.Length() == 0 {
		return p.parseTitlesOnly(doc, resp.URLString()), nil
	}

	books := make([]types.BookRecord, 0, containers.Length())
	containers.Each(func(_ int, card *goquery.Selection) {
		link := card.Find(p.cfg.TitleSelector).First()
		if link.Length() == 0 {
			p.logger.Debug("book container without title link", "url", resp.URLString())
			return
		}
		title, website := p.titleAndWebsite(link)
		books = append(books, types.NewBookRecord(p.authors(card), title, website))
	})

	return books, nil
}

// parseTitlesOnly handles markup without book containers: every title link
// still yields a record, without authors.
func (p *ListingParser) parseTitlesOnly(doc *goquery.Document, pageURL string) []types.BookRecord {
	links := doc.Find(p.cfg.TitleSelector)
	if links.Length() == 0 {
		return []types.BookRecord{}
	}

	p.logger.Warn("no book containers matched, authors unavailable",
		"url", pageURL,
		"book_selector", p.cfg.BookSelector,
		"titles", links.Length(),
	)

	books := make([]types.BookRecord, 0, links.Length())
	links.Each(func(_ int, link *goquery.Selection) {
		title, website := p.titleAndWebsite(link)
		books = append(books, types.NewBookRecord(nil, title, website))
	})
	return books
}

func (p *ListingParser) titleAndWebsite(link *goquery.Selection) (string, string) {
	title := cleanText(link.AttrOr("title", ""))
	if title == "" {
		title = cleanText(link.Text())
	}
	return title, p.resolver.resolve(link.AttrOr("href", ""))
}

// authors collects author link texts whose href carries the author marker.
func (p *ListingParser) authors(card *goquery.Selection) []string {
	authors := []string{}
	if p.cfg.AuthorSelector == "" {
		return authors
	}
	card.Find(p.cfg.AuthorSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.Contains(href, p.cfg.AuthorMarker) {
			return
		}
		if name := cleanText(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})
	return authors
}
