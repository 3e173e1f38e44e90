package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

const doneSentinel = "[DONE]"

var ErrClosed = errors.New("event stream closed")

// Writer frames relay events as `data: <json>\n\n` lines and terminates the
// stream with `data: [DONE]\n\n`. Once Done has been written every further
// write fails with ErrClosed.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
	closed  bool
	events  int
}

func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Open commits the event-stream response headers.
func (s *Writer) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
	s.flushLocked()
	return nil
}

func (s *Writer) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Events is the number of data events written, the sentinel included.
func (s *Writer) Events() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *Writer) Content(fragment string) error {
	return s.sendJSON(struct {
		Content string `json:"content"`
	}{Content: fragment})
}

func (s *Writer) Fail(message string) error {
	return s.sendJSON(struct {
		Error string `json:"error"`
	}{Error: message})
}

func (s *Writer) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.writeLocked([]byte(doneSentinel))
}

func (s *Writer) sendJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeLocked(bytes.TrimRight(buf.Bytes(), "\n"))
}

func (s *Writer) writeLocked(payload []byte) error {
	if !s.opened {
		return errors.New("event stream not opened")
	}
	line := make([]byte, 0, len(payload)+8)
	line = append(line, "data: "...)
	line = append(line, payload...)
	line = append(line, '\n', '\n')
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	s.events++
	s.flushLocked()
	return nil
}

func (s *Writer) flushLocked() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
