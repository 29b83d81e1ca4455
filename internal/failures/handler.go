// Package failures keeps the terminal log of requests whose retries ran out.
package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

// Store persists a single failure entry.
type Store interface {
	Save(ctx context.Context, failure crawler.Failure) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, failure crawler.Failure) error

// Save implements Store.
func (f StoreFunc) Save(ctx context.Context, failure crawler.Failure) error {
	return f(ctx, failure)
}

type lineWriter interface {
	WriteLine(ctx context.Context, line []byte) error
}

// JSONLines writes each failure as one JSON line.
type JSONLines struct {
	w lineWriter
}

// NewJSONLines wraps w.
func NewJSONLines(w lineWriter) *JSONLines {
	return &JSONLines{w: w}
}

// Save implements Store.
func (j *JSONLines) Save(ctx context.Context, failure crawler.Failure) error {
	line, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("encode failure: %w", err)
	}
	if err := j.w.WriteLine(ctx, line); err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}

// Handler records exhausted requests. It is safe for concurrent use.
type Handler struct {
	logger *zap.Logger
	stores []Store

	mu      sync.Mutex
	entries []crawler.Failure
}

// NewHandler returns a Handler writing to stores.
func NewHandler(logger *zap.Logger, stores ...Store) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger, stores: append([]Store(nil), stores...)}
}

// Record logs failure and appends it to every store. The entry is kept in
// memory even when a store rejects it.
func (h *Handler) Record(ctx context.Context, failure crawler.Failure) error {
	h.logger.Warn("request failed permanently",
		zap.String("url", failure.URL),
		zap.Stringer("stage", failure.Stage),
		zap.Int("attempts", failure.Attempts),
		zap.String("error", failure.Error),
	)
	h.mu.Lock()
	h.entries = append(h.entries, failure)
	h.mu.Unlock()

	var errs []error
	for _, store := range h.stores {
		if err := store.Save(ctx, failure); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of recorded failures.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Snapshot returns a copy of the recorded failures.
func (h *Handler) Snapshot() []crawler.Failure {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]crawler.Failure(nil), h.entries...)
}
