package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

// Kind denotes the milestone represented by an Event.
type Kind string

// Supported progress kinds.
const (
	KindRunStart      Kind = "RUN_START"
	KindRunDone       Kind = "RUN_DONE"
	KindRequestStart  Kind = "REQUEST_START"
	KindRequestDone   Kind = "REQUEST_DONE"
	KindRequestRetry  Kind = "REQUEST_RETRY"
	KindRequestFailed Kind = "REQUEST_FAILED"
	KindRecord        Kind = "RECORD"
)

// Event captures a single step of crawl progress.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS   time.Time
	Kind Kind
	// Stage is the page stage of request and record events.
	Stage crawler.Stage
	// URL is the request URL; empty for run events.
	URL     string
	Attempt int
	// Dur is the request latency, or the run wall time for RUN_DONE.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart, KindRunDone:
	case KindRequestStart, KindRequestDone, KindRequestRetry, KindRequestFailed, KindRecord:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Kind)
		}
		if !e.Stage.Valid() {
			return fmt.Errorf("%s requires a valid stage", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID parses the textual run ID produced by the id generator.
func ParseRunID(raw string) ([16]byte, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
