package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// Detail holds the fields read from a book's own page.
type Detail struct {
	Description string
	Genre       string
	EPUB        string
	PDF         string
}

// ApplyTo returns a copy of rec carrying the detail fields.
func (d Detail) ApplyTo(rec types.BookRecord) types.BookRecord {
	out := rec.Clone()
	out.Description = d.Description
	out.Genre = d.Genre
	out.EPUB = d.EPUB
	out.PDF = d.PDF
	return out
}

// DownloadFormat is the file format a download link offers.
type DownloadFormat int

const (
	FormatUnknown DownloadFormat = iota
	FormatEPUB
	FormatPDF
)

// ClassifyDownload maps a download link's text to a format. EPUB wins when
// both names appear.
func ClassifyDownload(linkText string) DownloadFormat {
	text := strings.ToLower(linkText)
	switch {
	case strings.Contains(text, "epub"):
		return FormatEPUB
	case strings.Contains(text, "pdf"):
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// DetailParser extracts Detail from a book page.
type DetailParser struct {
	cfg      config.ParserConfig
	resolver linkResolver
	logger   *slog.Logger
}

// NewDetailParser creates a detail parser resolving links against baseURL.
func NewDetailParser(cfg config.ParserConfig, baseURL string, logger *slog.Logger) (*DetailParser, error) {
	resolver, err := newLinkResolver(baseURL)
	if err != nil {
		return nil, err
	}
	return &DetailParser{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With("component", "detail_parser"),
	}, nil
}

// Parse reads the synopsis, genre and download sections. If any of them is
// missing the page is rejected as a whole with a ParseError wrapping
// types.ErrStructureMissing.
func (p *DetailParser) Parse(resp *types.Response) (Detail, error) {
	doc, err := resp.Document()
	if err != nil {
		return Detail{}, &types.ParseError{URL: resp.URLString(), Err: err}
	}

	synopsis, err := p.require(doc, resp, p.cfg.DescriptionSel)
	if err != nil {
		return Detail{}, err
	}
	genres, err := p.require(doc, resp, p.cfg.GenreSelector)
	if err != nil {
		return Detail{}, err
	}
	downloads, err := p.require(doc, resp, p.cfg.DownloadSelector)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{
		Description: strings.TrimSpace(synopsis.Text()),
		Genre:       p.genre(genres),
	}

	downloads.Find("a").Each(func(_ int, a *goquery.Selection) {
		link := p.resolver.resolve(a.AttrOr("href", ""))
		if link == "" {
			return
		}
		switch ClassifyDownload(a.Text()) {
		case FormatEPUB:
			d.EPUB = link
		case FormatPDF:
			d.PDF = link
		}
	})

	return d, nil
}

func (p *DetailParser) require(doc *goquery.Document, resp *types.Response, selector string) (*goquery.Selection, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, &types.ParseError{
			URL:      resp.URLString(),
			Selector: selector,
			Err:      types.ErrStructureMissing,
		}
	}
	return sel, nil
}

func (p *DetailParser) genre(container *goquery.Selection) string {
	var names []string
	container.Find("a").Each(func(_ int, a *goquery.Selection) {
		names = append(names, cleanText(a.Text()))
	})
	return strings.Join(names, p.cfg.GenreSeparator)
}
