package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a transport or browser failure. Retryable.
	ErrFetch = errors.New("fetch failed")
	// ErrExtract marks a page that does not match its stage template. Retryable.
	ErrExtract = errors.New("page does not match stage template")
	// ErrNoSeeds is returned when the crawl is started without seeds.
	ErrNoSeeds = errors.New("seed list is empty")
	// ErrInvalidSeed is returned for a seed with a bad URL or stage.
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrUnsupportedURL rejects links that cannot be crawled (mailto:, javascript:, ...).
	ErrUnsupportedURL = errors.New("unsupported url")
	// ErrDisallowed marks a URL excluded by robots.txt. Never retried.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// FatalInitError wraps failures that abort a run before any work begins.
type FatalInitError struct {
	Err error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("fatal init: %v", e.Err)
}

func (e *FatalInitError) Unwrap() error {
	return e.Err
}

// ExtractErrorf builds an ErrExtract-wrapped error for stage.
func ExtractErrorf(stage Stage, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", stage, ErrExtract, fmt.Sprintf(format, args...))
}

// Retryable reports whether err should consume a retry attempt.
func Retryable(err error) bool {
	if errors.Is(err, ErrDisallowed) {
		return false
	}
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrExtract)
}
