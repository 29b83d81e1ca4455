// Package local implements JSON-lines output on the local filesystem.
package local

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config captures the parameters for a line file.
type Config struct {
	// Path of the output file. Parent directories are created.
	Path string `mapstructure:"path" yaml:"path"`
	// Append keeps existing content instead of truncating.
	Append bool `mapstructure:"append" yaml:"append"`
}

// LineFile appends newline-terminated records to a file.
type LineFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// New opens (or creates) the file described by cfg.
func New(cfg Config) (*LineFile, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(filepath.Clean(cfg.Path), flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	return &LineFile{path: cfg.Path, file: f, buf: bufio.NewWriter(f)}, nil
}

// WriteLine writes line followed by a newline.
func (s *LineFile) WriteLine(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("write %s: file closed", s.path)
	}
	if _, err := s.buf.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Flush pushes buffered lines to the file.
func (s *LineFile) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the file. Subsequent calls are no-ops.
func (s *LineFile) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", s.path, closeErr)
	}
	return nil
}

// URI returns a file:// URI for the output.
func (s *LineFile) URI() string {
	return fmt.Sprintf("file://%s", s.path)
}
