// Package extract holds the page extractors for each level of the hotel
// directory: the start page, per-letter glossary pages, city pages and hotel
// detail pages.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

// Default returns a registry wired with the directory extractors.
func Default() (*crawler.Registry, error) {
	return crawler.NewRegistry(Start, Glossary, City, Hotel)
}

// text returns the trimmed text of the first match, or "".
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

// href returns the trimmed href of the first match, or "".
func href(sel *goquery.Selection) string {
	v, _ := sel.First().Attr("href")
	return strings.TrimSpace(v)
}

// absolute resolves link against the page URL for storage in records. Links
// that cannot be resolved are kept as written.
func absolute(link, page string) string {
	abs, _, err := crawler.ResolveURL(link, page)
	if err != nil {
		return link
	}
	return abs
}

// links collects the titled anchors in sel, skipping anchors without href.
// The link list is never nil so empty pages encode as [].
// Returned link URLs are absolute; discovered entries keep the raw href so
// the frontier resolves them against the referrer.
func links(sel *goquery.Selection, page string, next crawler.Stage) ([]crawler.Link, []crawler.Discovered) {
	out := []crawler.Link{}
	var discovered []crawler.Discovered
	sel.Each(func(_ int, a *goquery.Selection) {
		raw := href(a)
		if raw == "" {
			return
		}
		out = append(out, crawler.Link{
			Title: strings.TrimSpace(a.Text()),
			URL:   absolute(raw, page),
		})
		discovered = append(discovered, crawler.Discovered{URL: raw, Stage: next})
	})
	return out, discovered
}
