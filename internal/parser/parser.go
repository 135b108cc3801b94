// Package parser extracts book data from listing and detail page markup.
package parser

import (
	"fmt"
	"net/url"
	"strings"
)

// linkResolver turns hrefs found in markup into absolute site URLs.
type linkResolver struct {
	base *url.URL
}

func newLinkResolver(baseURL string) (linkResolver, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return linkResolver{}, fmt.Errorf("parse base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return linkResolver{}, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	return linkResolver{base: base}, nil
}

// resolve returns the absolute form of href, or "" when href is not a
// followable http(s) link.
func (r linkResolver) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := r.base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// cleanText trims s and collapses internal runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
