// Package dataset persists extracted records as JSON lines in completion order.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotel-directory-crawler/internal/crawler"
)

// ErrSinkClosed is returned by Append once Close has been called.
var ErrSinkClosed = errors.New("dataset sink closed")

const defaultBuffer = 256

// LineStore accepts one encoded record per call.
type LineStore interface {
	WriteLine(ctx context.Context, line []byte) error
	Close(ctx context.Context) error
}

// Notifier announces each persisted record to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) error
	Close(ctx context.Context) error
}

// Config controls the sink buffer.
type Config struct {
	// Buffer is the number of records accepted before Append blocks.
	Buffer int
	Logger *zap.Logger
}

// Sink is a thread-safe, ordered record sink. A single writer goroutine
// drains the buffer so records reach every store in arrival order.
type Sink struct {
	stores   []LineStore
	notifier Notifier
	logger   *zap.Logger

	queue   chan entry
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	written atomic.Int64

	errMu    sync.Mutex
	firstErr error
}

type entry struct {
	ctx    context.Context
	record crawler.Record
}

// New starts the writer goroutine. notifier may be nil.
func New(cfg Config, notifier Notifier, stores ...LineStore) *Sink {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		stores:   append([]LineStore(nil), stores...),
		notifier: notifier,
		logger:   logger,
		queue:    make(chan entry, cfg.Buffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Append queues record for persistence. It blocks while the buffer is full
// and returns the ctx error if ctx ends first.
func (s *Sink) Append(ctx context.Context, record crawler.Record) error {
	if record == nil {
		return fmt.Errorf("dataset: nil record")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- entry{ctx: context.WithoutCancel(ctx), record: record}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dataset append: %w", ctx.Err())
	}
}

// Written returns the number of records handed to the stores.
func (s *Sink) Written() int64 {
	return s.written.Load()
}

// Close stops accepting records, drains the buffer and closes every store.
// It returns the first persistence error seen during the run.
func (s *Sink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("dataset close wait: %w", ctx.Err())
	}
	for _, store := range s.stores {
		if err := store.Close(ctx); err != nil {
			s.setErr(fmt.Errorf("close store: %w", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Close(ctx); err != nil {
			s.setErr(fmt.Errorf("close notifier: %w", err))
		}
	}
	return s.err()
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.write(e.ctx, e.record)
	}
}

func (s *Sink) write(ctx context.Context, record crawler.Record) {
	line, err := json.Marshal(record)
	if err != nil {
		s.setErr(fmt.Errorf("encode record: %w", err))
		s.logger.Error("record encode failed", zap.String("url", record.PageURL()), zap.Error(err))
		return
	}
	for _, store := range s.stores {
		if err := store.WriteLine(ctx, line); err != nil {
			s.setErr(fmt.Errorf("write record: %w", err))
			s.logger.Error("record write failed", zap.String("url", record.PageURL()), zap.Error(err))
		}
	}
	s.written.Add(1)
	if s.notifier == nil {
		return
	}
	attrs := map[string]string{
		"type": record.RecordStage().String(),
		"url":  record.PageURL(),
	}
	if err := s.notifier.Publish(ctx, attrs, json.RawMessage(line)); err != nil {
		s.logger.Warn("record notification failed", zap.String("url", record.PageURL()), zap.Error(err))
	}
}

func (s *Sink) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

func (s *Sink) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}
