package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

const (
	hotelNameSelector      = "body div.hotel-view h1"
	hotelAddressSelector   = "div.hotel-view div.address"
	hotelFeaturesSelector  = "div.hotel-view div.hotel-features"
	roomFacilitiesSelector = "div.hotel-view div.hotel-features div.room-facilities"
	mapLinkSelector        = `#mapDiv a[jsaction="mouseup:placeCard.largerMap"]`
)

var (
	phonePattern   = labelled("Telefon")
	faxPattern     = labelled("Fax")
	emailPattern   = labelled("E-Mail")
	websitePattern = labelled("Web")
	ownerPattern   = labelled("Inhaber")
	bedsPattern    = regexp.MustCompile(`Anzahl der Betten:[ \t]*(.+)`)
	coordsPattern  = regexp.MustCompile(`/maps\?ll=(-?\d+\.\d*),(-?\d+\.\d*)`)
	blankRun       = regexp.MustCompile(`[\t ]+`)
)

// labelled matches "<label>: value" at the start of a line.
func labelled(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(label) + `:[ \t]*(.+)$`)
}

func match(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Hotel reads the contact block, features and map coordinates of a hotel.
func Hotel(doc *goquery.Document, req crawler.Request) (crawler.Record, []crawler.Discovered, error) {
	name := doc.Find(hotelNameSelector)
	if name.Length() == 0 {
		return nil, nil, crawler.ExtractErrorf(crawler.StageHotel, "missing hotel name")
	}

	addressBlock := doc.Find(hotelAddressSelector)
	contact := addressBlock.Text()
	features := doc.Find(hotelFeaturesSelector).Text()

	record := crawler.HotelRecord{
		Type:         crawler.StageHotel,
		URL:          req.URL,
		Name:         text(name),
		Address:      blankRun.ReplaceAllString(text(addressBlock.ChildrenFiltered("p")), " "),
		Phone:        match(phonePattern, contact),
		Fax:          match(faxPattern, contact),
		Email:        match(emailPattern, contact),
		Website:      match(websitePattern, contact),
		NumberOfBeds: match(bedsPattern, features),
		Owner:        match(ownerPattern, contact),
		Amenities:    amenities(doc),
	}
	record.Lat, record.Lon = coordinates(doc)
	return record, nil, nil
}

func amenities(doc *goquery.Document) []string {
	out := []string{}
	doc.Find(roomFacilitiesSelector).Parent().Find("ul li").Each(func(_ int, li *goquery.Selection) {
		if item := strings.TrimSpace(li.Text()); item != "" {
			out = append(out, item)
		}
	})
	return out
}

// coordinates parses lat/lon from the embedded map link. Both are nil when the
// link is absent or unparsable.
func coordinates(doc *goquery.Document) (lat, lon *string) {
	m := coordsPattern.FindStringSubmatch(href(doc.Find(mapLinkSelector)))
	if m == nil {
		return nil, nil
	}
	return &m[1], &m[2]
}
