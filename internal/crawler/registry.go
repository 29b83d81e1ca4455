package crawler

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Extractor turns a fetched page into a record plus the follow-up links it
// discovered. Optional fields that are missing come back as empty strings;
// an error wrapping ErrExtract is returned only on a template mismatch.
type Extractor func(doc *goquery.Document, req Request) (Record, []Discovered, error)

// Registry maps every stage to its extractor.
type Registry struct {
	extractors [stageCount]Extractor
}

// NewRegistry takes one extractor per stage, so a registry cannot be built
// with a stage left unhandled.
func NewRegistry(start, glossary, city, hotel Extractor) (*Registry, error) {
	r := &Registry{}
	r.extractors[StageStart] = start
	r.extractors[StageGlossary] = glossary
	r.extractors[StageCity] = city
	r.extractors[StageHotel] = hotel
	for _, stage := range Stages() {
		if r.extractors[stage] == nil {
			return nil, fmt.Errorf("extractor for stage %s is nil", stage)
		}
	}
	return r, nil
}

// Extract dispatches doc to the extractor for req.Stage and enforces stage
// closure: records carry the request stage and hotel pages discover nothing.
func (r *Registry) Extract(doc *goquery.Document, req Request) (Record, []Discovered, error) {
	if !req.Stage.Valid() {
		return nil, nil, fmt.Errorf("dispatch %s: unknown stage", req.Stage)
	}
	record, discovered, err := r.extractors[req.Stage](doc, req)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ExtractErrorf(req.Stage, "extractor returned no record")
	}
	if record.RecordStage() != req.Stage {
		return nil, nil, fmt.Errorf("dispatch %s: extractor produced %s record", req.Stage, record.RecordStage())
	}
	if _, ok := req.Stage.Next(); !ok && len(discovered) > 0 {
		return nil, nil, fmt.Errorf("dispatch %s: terminal stage discovered %d links", req.Stage, len(discovered))
	}
	return record, discovered, nil
}
