package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

const (
	navigationSelector     = "#navigation"
	glossaryLinkSelector   = "#navigation > li a"
	placesListSelector     = "div.list-of-places"
	cityLinkSelector       = "div.full-rel-left.list-of-places.mb15.mt20 li a"
	glossaryLetterSelector = "body > div.container > div.row.full-rel-left.content > div > h1 > span"
	cityHeadingSelector    = "body > div.container > div.row.full-rel-left.content > div.full-rel-left > h1"
	hotelEntrySelector     = "ul.hotels-list div.title-address"
	entryAddressSelector   = "div[itemprop=address]"
)

// Start reads the alphabet navigation and queues every glossary page.
func Start(doc *goquery.Document, req crawler.Request) (crawler.Record, []crawler.Discovered, error) {
	if doc.Find(navigationSelector).Length() == 0 {
		return nil, nil, crawler.ExtractErrorf(crawler.StageStart, "missing %s", navigationSelector)
	}
	glossaries, discovered := links(doc.Find(glossaryLinkSelector), req.URL, crawler.StageGlossary)
	return crawler.StartRecord{
		Type:       crawler.StageStart,
		URL:        req.URL,
		Glossaries: glossaries,
	}, discovered, nil
}

// Glossary lists the cities filed under one letter.
func Glossary(doc *goquery.Document, req crawler.Request) (crawler.Record, []crawler.Discovered, error) {
	if doc.Find(placesListSelector).Length() == 0 {
		return nil, nil, crawler.ExtractErrorf(crawler.StageGlossary, "missing %s", placesListSelector)
	}
	cities, discovered := links(doc.Find(cityLinkSelector), req.URL, crawler.StageCity)
	return crawler.GlossaryRecord{
		Type:           crawler.StageGlossary,
		URL:            req.URL,
		GlossaryLetter: text(doc.Find(glossaryLetterSelector)),
		Cities:         cities,
	}, discovered, nil
}

// City summarizes the hotels listed for a city and queues their detail pages.
func City(doc *goquery.Document, req crawler.Request) (crawler.Record, []crawler.Discovered, error) {
	heading := doc.Find(cityHeadingSelector)
	if heading.Length() == 0 {
		return nil, nil, crawler.ExtractErrorf(crawler.StageCity, "missing city heading")
	}
	city := text(heading)

	hotels := []crawler.HotelSummary{}
	var discovered []crawler.Discovered
	doc.Find(hotelEntrySelector).Each(func(_ int, entry *goquery.Selection) {
		anchor := entry.Find("a")
		address := entry.Find(entryAddressSelector)
		summary := crawler.HotelSummary{
			City:           city,
			Name:           text(anchor),
			AddrFull:       text(address),
			AddrStreet:     text(address.Find("span[itemprop=streetAddress]")),
			AddrPostalCode: text(address.Find("span[itemprop=postalCode]")),
			AddrLocality:   text(address.Find("span[itemprop=addressLocality]")),
			PriceRange:     text(entry.Closest("div.content").Find("li[itemprop=priceRange]")),
		}
		if raw := href(anchor); raw != "" {
			summary.URL = absolute(raw, req.URL)
			discovered = append(discovered, crawler.Discovered{URL: raw, Stage: crawler.StageHotel})
		}
		hotels = append(hotels, summary)
	})

	return crawler.CityRecord{
		Type:   crawler.StageCity,
		URL:    req.URL,
		City:   city,
		Hotels: hotels,
	}, discovered, nil
}
