package crawler

// Record is one structured extraction result. Implementations are value
// types and are not mutated after the extractor returns them.
type Record interface {
	RecordStage() Stage
	PageURL() string
}

// StartRecord lists the top-level index entries of the start page.
type StartRecord struct {
	Type       Stage  `json:"type"`
	URL        string `json:"url"`
	Glossaries []Link `json:"glossaries"`
}

// GlossaryRecord lists the cities under one letter of the glossary.
type GlossaryRecord struct {
	Type           Stage  `json:"type"`
	URL            string `json:"url"`
	GlossaryLetter string `json:"glossary_letter"`
	Cities         []Link `json:"cities"`
}

// HotelSummary is the short hotel entry shown on a city page.
type HotelSummary struct {
	City           string `json:"city"`
	Name           string `json:"name"`
	AddrFull       string `json:"addr_full"`
	AddrStreet     string `json:"addr_street"`
	AddrPostalCode string `json:"addr_postalcode"`
	AddrLocality   string `json:"addr_locality"`
	PriceRange     string `json:"price_range"`
	URL            string `json:"url"`
}

// CityRecord lists the hotels of one city.
type CityRecord struct {
	Type   Stage          `json:"type"`
	URL    string         `json:"url"`
	City   string         `json:"city"`
	Hotels []HotelSummary `json:"hotels"`
}

// HotelRecord is the detail record of a single hotel. Lat and Lon are nil
// when the map link is missing or malformed and encode as JSON null.
type HotelRecord struct {
	Type         Stage    `json:"type"`
	URL          string   `json:"url"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone"`
	Fax          string   `json:"fax"`
	Email        string   `json:"email"`
	Website      string   `json:"website"`
	NumberOfBeds string   `json:"number_of_beds"`
	Owner        string   `json:"owner"`
	Amenities    []string `json:"amenities"`
	Lat          *string  `json:"lat"`
	Lon          *string  `json:"lon"`
}

// RecordStage implements Record.
func (r StartRecord) RecordStage() Stage { return StageStart }

// PageURL implements Record.
func (r StartRecord) PageURL() string { return r.URL }

// RecordStage implements Record.
func (r GlossaryRecord) RecordStage() Stage { return StageGlossary }

// PageURL implements Record.
func (r GlossaryRecord) PageURL() string { return r.URL }

// RecordStage implements Record.
func (r CityRecord) RecordStage() Stage { return StageCity }

// PageURL implements Record.
func (r CityRecord) PageURL() string { return r.URL }

// RecordStage implements Record.
func (r HotelRecord) RecordStage() Stage { return StageHotel }

// PageURL implements Record.
func (r HotelRecord) PageURL() string { return r.URL }
