// Package gcs streams JSON-lines output into a Google Cloud Storage object.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
)

const defaultContentType = "application/x-ndjson"

// Config captures the destination object.
type Config struct {
	Bucket      string
	Object      string
	ContentType string
}

// LineObject writes newline-terminated records into one GCS object. The
// object becomes visible when Close commits the upload.
type LineObject struct {
	mu     sync.Mutex
	w      io.WriteCloser
	uri    string
	closed bool
}

// New opens a streaming writer for cfg.Object. ctx bounds the whole upload
// and must stay alive until Close.
func New(ctx context.Context, client *storage.Client, cfg Config) (*LineObject, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	writer := client.Bucket(cfg.Bucket).Object(cfg.Object).NewWriter(ctx)
	writer.ContentType = cfg.ContentType
	if writer.ContentType == "" {
		writer.ContentType = defaultContentType
	}
	return NewWithWriter(writer, fmt.Sprintf("gs://%s/%s", cfg.Bucket, cfg.Object)), nil
}

// NewWithWriter wraps an existing writer (primarily for testing).
func NewWithWriter(w io.WriteCloser, uri string) *LineObject {
	return &LineObject{w: w, uri: uri}
}

// WriteLine appends line and a newline to the upload.
func (o *LineObject) WriteLine(_ context.Context, line []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("write %s: object closed", o.uri)
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := o.w.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", o.uri, err)
	}
	return nil
}

// Close finalizes the upload. Subsequent calls are no-ops.
func (o *LineObject) Close(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.w.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", o.uri, err)
	}
	return nil
}

// URI returns the gs:// location of the object.
func (o *LineObject) URI() string {
	return o.uri
}
