package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// PageCounter reads the listing page count from the pagination links.
type PageCounter struct {
	cfg    config.ParserConfig
	logger *slog.Logger
}

// NewPageCounter creates a page counter.
func NewPageCounter(cfg config.ParserConfig, logger *slog.Logger) *PageCounter {
	return &PageCounter{
		cfg:    cfg,
		logger: logger.With("component", "page_counter"),
	}
}

// Count returns the number of listing pages advertised by the first page.
//
// The second-to-last pagination link is expected to hold the last page
// number, with the "next" link after it. When the links do not have that
// shape the largest numeric link is used instead, and a page without numeric
// links counts as one page.
func (c *PageCounter) Count(resp *types.Response) (int, error) {
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return 0, &types.ParseError{URL: resp.URLString(), Err: err}
	}

	nodes, err := htmlquery.QueryAll(doc, c.cfg.PageNumberXPath)
	if err != nil {
		return 0, &types.ParseError{
			URL:      resp.URLString(),
			Selector: c.cfg.PageNumberXPath,
			Err:      fmt.Errorf("invalid xpath: %w", err),
		}
	}

	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = htmlquery.InnerText(n)
	}

	if len(labels) >= 2 {
		_, lastIsNumber := parsePageNumber(labels[len(labels)-1])
		if n, ok := parsePageNumber(labels[len(labels)-2]); ok && !lastIsNumber {
			return n, nil
		}
	}

	highest := 0
	for _, label := range labels {
		if n, ok := parsePageNumber(label); ok && n > highest {
			highest = n
		}
	}
	if highest > 0 {
		c.logger.Debug("using largest page number",
			"url", resp.URLString(),
			"links", len(labels),
			"pages", highest,
		)
		return highest, nil
	}

	c.logger.Warn("no page numbers found, assuming a single page", "url", resp.URLString())
	return 1, nil
}

// HasNext reports whether the page links to a following listing page.
func (c *PageCounter) HasNext(resp *types.Response) (bool, error) {
	doc, err := resp.Document()
	if err != nil {
		return false, &types.ParseError{URL: resp.URLString(), Err: err}
	}
	return doc.Find(c.cfg.NextPageSelector).Length() > 0, nil
}

// parsePageNumber parses a pagination label such as "1.234" or "1,234".
func parsePageNumber(label string) (int, bool) {
	label = strings.TrimSpace(label)
	label = strings.NewReplacer(".", "", ",", "").Replace(label)
	if label == "" {
		return 0, false
	}
	n, err := strconv.Atoi(label)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
