package logging

import (
	"io"
	"os"
	"sync"
)

// switchWriter forwards to a writer that can be replaced while loggers hold it.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

// swap installs w, falling back to stderr for nil, and returns the previous writer.
func (s *switchWriter) swap(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

var stderrSink = &switchWriter{w: os.Stderr}

// SetGlobalOutput redirects the stderr sink of every component logger.
// A nil writer restores stderr.
func SetGlobalOutput(w io.Writer) {
	stderrSink.swap(w)
}

// RedirectGlobalOutput redirects the stderr sink until the returned restore
// function is called. The dashboard uses it to keep log lines from tearing
// the alternate screen.
func RedirectGlobalOutput(w io.Writer) (restore func()) {
	prev := stderrSink.swap(w)
	return func() { stderrSink.swap(prev) }
}

// GetGlobalOutput returns the shared stderr sink.
func GetGlobalOutput() io.Writer {
	return stderrSink
}
