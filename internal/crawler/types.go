package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies which extractor and record schema apply to a request.
type Stage int

// Stages of the directory hierarchy, in traversal order.
const (
	StageStart Stage = iota
	StageGlossary
	StageCity
	StageHotel

	stageCount
)

var stageNames = [stageCount]string{
	StageStart:    "start",
	StageGlossary: "glossary",
	StageCity:     "city",
	StageHotel:    "hotel",
}

// Stages returns every stage in traversal order.
func Stages() []Stage {
	return []Stage{StageStart, StageGlossary, StageCity, StageHotel}
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s >= StageStart && s < stageCount
}

// String returns the lowercase stage name.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage of requests discovered on a page of stage s.
// Hotel pages are terminal and report false.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageStart:
		return StageGlossary, true
	case StageGlossary:
		return StageCity, true
	case StageCity:
		return StageHotel, true
	default:
		return 0, false
	}
}

// Label returns the page label used in request user data ("city-page").
func (s Stage) Label() string {
	return s.String() + "-page"
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStage accepts a stage name ("city") or its page label ("city-page").
func ParseStage(raw string) (Stage, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "-page")
	for i, candidate := range stageNames {
		if candidate == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", raw)
}

// Request is one unit of crawl work.
type Request struct {
	// URL is the absolute URL handed to the fetcher.
	URL string
	// Key is the canonical URL used for deduplication.
	Key      string
	Stage    Stage
	UserData map[string]string
	// Attempt counts failed attempts so far.
	Attempt  int
	Referrer string
}

// Link is a titled hyperlink scraped from an index page.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Discovered is a follow-up link produced by an extractor.
type Discovered struct {
	URL   string
	Stage Stage
}

// Failure is a request whose retry budget is exhausted.
type Failure struct {
	URL      string    `json:"url"`
	Key      string    `json:"key"`
	Stage    Stage     `json:"stage"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// NewFailure builds the terminal entry for req.
func NewFailure(req Request, err error, at time.Time) Failure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Failure{
		URL:      req.URL,
		Key:      req.Key,
		Stage:    req.Stage,
		Attempts: req.Attempt,
		Error:    msg,
		FailedAt: at,
	}
}
