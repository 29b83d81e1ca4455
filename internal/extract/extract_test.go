package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

func load(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestStartListsGlossaries(t *testing.T) {
	t.Parallel()

	req := crawler.Request{URL: "https://www.example.com/", Stage: crawler.StageStart}
	rec, discovered, err := Start(load(t, "start.html"), req)
	require.NoError(t, err)

	start, ok := rec.(crawler.StartRecord)
	require.True(t, ok)
	require.Equal(t, crawler.StageStart, start.Type)
	require.Equal(t, req.URL, start.URL)
	require.Equal(t, []crawler.Link{
		{Title: "A", URL: "https://www.example.com/glossar/a"},
		{Title: "B", URL: "https://www.example.com/glossar/b/"},
		{Title: "Kontakt", URL: "mailto:info@example.com"},
	}, start.Glossaries)

	require.Len(t, discovered, 3, "anchor without href is skipped")
	require.Equal(t, crawler.Discovered{URL: "/glossar/a", Stage: crawler.StageGlossary}, discovered[0])
	for _, d := range discovered {
		require.Equal(t, crawler.StageGlossary, d.Stage)
	}
}

func TestGlossaryListsCities(t *testing.T) {
	t.Parallel()

	req := crawler.Request{URL: "https://www.example.com/glossar/p", Stage: crawler.StageGlossary}
	rec, discovered, err := Glossary(load(t, "glossary.html"), req)
	require.NoError(t, err)

	glossary, ok := rec.(crawler.GlossaryRecord)
	require.True(t, ok)
	require.Equal(t, "P", glossary.GlossaryLetter)
	require.Equal(t, []crawler.Link{
		{Title: "Pirna", URL: "https://www.example.com/pirna/"},
		{Title: "Potsdam", URL: "https://www.example.com/potsdam"},
	}, glossary.Cities)
	require.Equal(t, []crawler.Discovered{
		{URL: "/pirna/", Stage: crawler.StageCity},
		{URL: "../potsdam", Stage: crawler.StageCity},
	}, discovered)
}

func TestCitySummarizesHotels(t *testing.T) {
	t.Parallel()

	req := crawler.Request{URL: "https://www.example.com/pirna/", Stage: crawler.StageCity}
	rec, discovered, err := City(load(t, "city.html"), req)
	require.NoError(t, err)

	city, ok := rec.(crawler.CityRecord)
	require.True(t, ok)
	require.Equal(t, "Pirna", city.City)
	require.Len(t, city.Hotels, 2)
	require.Equal(t, crawler.HotelSummary{
		City:           "Pirna",
		Name:           "Hotel Zur Post",
		AddrFull:       "Dohnaische Str. 1 01796 Pirna",
		AddrStreet:     "Dohnaische Str. 1",
		AddrPostalCode: "01796",
		AddrLocality:   "Pirna",
		PriceRange:     "30 - 60 EUR",
		URL:            "https://www.example.com/pirna/hotel-zur-post/34",
	}, city.Hotels[0])

	bare := city.Hotels[1]
	require.Equal(t, "Pension ohne Link", bare.Name)
	require.Empty(t, bare.URL)
	require.Empty(t, bare.PriceRange)
	require.Empty(t, bare.AddrFull)

	require.Equal(t, []crawler.Discovered{
		{URL: "/pirna/hotel-zur-post/34", Stage: crawler.StageHotel},
	}, discovered)
}

func TestHotelDetail(t *testing.T) {
	t.Parallel()

	req := crawler.Request{URL: "https://www.example.com/pirna/hotel-zur-post/34", Stage: crawler.StageHotel}
	rec, discovered, err := Hotel(load(t, "hotel.html"), req)
	require.NoError(t, err)
	require.Empty(t, discovered)

	hotel, ok := rec.(crawler.HotelRecord)
	require.True(t, ok)
	require.Equal(t, req.URL, hotel.URL)
	require.Equal(t, "Hotel Zur Post", hotel.Name)
	require.Equal(t, "Dohnaische Str. 1 01796 Pirna", hotel.Address)
	require.Equal(t, "03501 12345", hotel.Phone)
	require.Equal(t, "03501 12346", hotel.Fax)
	require.Equal(t, "info@zurpost.example", hotel.Email)
	require.Equal(t, "www.zurpost.example", hotel.Website)
	require.Equal(t, "Familie Schmidt", hotel.Owner)
	require.Equal(t, "42", hotel.NumberOfBeds)
	require.Equal(t, []string{"WLAN", "Dusche/WC"}, hotel.Amenities)
	require.NotNil(t, hotel.Lat)
	require.NotNil(t, hotel.Lon)
	require.Equal(t, "50.9623", *hotel.Lat)
	require.Equal(t, "13.9412", *hotel.Lon)
}

func TestHotelToleratesMissingFields(t *testing.T) {
	t.Parallel()

	rec, _, err := Hotel(load(t, "hotel_minimal.html"), crawler.Request{Stage: crawler.StageHotel})
	require.NoError(t, err)

	hotel, ok := rec.(crawler.HotelRecord)
	require.True(t, ok)
	require.Equal(t, "Gasthof Ohne Angaben", hotel.Name)
	require.Empty(t, hotel.Phone)
	require.Empty(t, hotel.Email)
	require.Empty(t, hotel.NumberOfBeds)
	require.Empty(t, hotel.Amenities)
	require.Nil(t, hotel.Lat, "map link without coordinates yields nil")
	require.Nil(t, hotel.Lon)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	t.Parallel()

	page := func(body string) *goquery.Document {
		return parse(t, `<html><body><div class="container"><div class="row full-rel-left content">`+body+`</div></div></body></html>`)
	}
	cases := []struct {
		name      string
		extractor crawler.Extractor
		doc       *goquery.Document
		field     string
	}{
		{name: "start", extractor: Start, doc: parse(t, `<html><body><ul id="navigation"></ul></body></html>`), field: `"glossaries":[]`},
		{name: "glossary", extractor: Glossary, doc: page(`<div><h1>Orte mit <span>Q</span></h1></div><div class="full-rel-left list-of-places mb15 mt20"><ul></ul></div>`), field: `"cities":[]`},
		{name: "city", extractor: City, doc: page(`<div class="full-rel-left"><h1>Quedlinburg</h1></div>`), field: `"hotels":[]`},
		{name: "hotel", extractor: Hotel, doc: load(t, "hotel_minimal.html"), field: `"amenities":[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, discovered, err := tc.extractor(tc.doc, crawler.Request{URL: "https://www.example.com/x"})
			require.NoError(t, err)
			require.Empty(t, discovered)

			raw, err := json.Marshal(rec)
			require.NoError(t, err)
			require.Contains(t, string(raw), tc.field)
			require.NotContains(t, string(raw), strings.Replace(tc.field, "[]", "null", 1))
		})
	}
}

func TestTemplateMismatch(t *testing.T) {
	t.Parallel()

	empty := `<html><body><p>Wartungsarbeiten</p></body></html>`
	for stage, extractor := range map[crawler.Stage]crawler.Extractor{
		crawler.StageStart:    Start,
		crawler.StageGlossary: Glossary,
		crawler.StageCity:     City,
		crawler.StageHotel:    Hotel,
	} {
		_, _, err := extractor(parse(t, empty), crawler.Request{Stage: stage})
		require.ErrorIs(t, err, crawler.ErrExtract, stage.String())
		require.Contains(t, err.Error(), stage.String())
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	require.NoError(t, err)

	rec, discovered, err := reg.Extract(load(t, "city.html"), crawler.Request{
		URL:   "https://www.example.com/pirna/",
		Stage: crawler.StageCity,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.StageCity, rec.RecordStage())
	require.Len(t, discovered, 1)

	_, _, err = reg.Extract(load(t, "city.html"), crawler.Request{Stage: crawler.StageHotel})
	require.ErrorIs(t, err, crawler.ErrExtract)
}
