package sse

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestWriterFramesEventsAndSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	if err := w.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, frag := range []string{"He", "llo", " <b>&"} {
		if err := w.Content(frag); err != nil {
			t.Fatalf("content %q: %v", frag, err)
		}
	}
	if err := w.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}
	want := "data: {\"content\":\"He\"}\n\n" +
		"data: {\"content\":\"llo\"}\n\n" +
		"data: {\"content\":\" <b>&\"}\n\n" +
		"data: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", got, want)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content-type %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flushes")
	}
	if w.Events() != 4 {
		t.Fatalf("expected 4 events, got %d", w.Events())
	}
}

func TestWriterRejectsWritesAfterDone(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	_ = w.Open()
	if err := w.Fail("boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := w.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}
	if err := w.Content("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for content, got %v", err)
	}
	if err := w.Fail("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for fail, got %v", err)
	}
	if err := w.Done(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for second done, got %v", err)
	}
	want := "data: {\"error\":\"boom\"}\n\ndata: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected body %q", got)
	}
	if !w.Closed() {
		t.Fatal("expected Closed")
	}
}

func TestWriterRequiresOpen(t *testing.T) {
	w := NewWriter(httptest.NewRecorder())
	if err := w.Content("x"); err == nil {
		t.Fatal("expected error writing before open")
	}
	if w.Opened() {
		t.Fatal("unexpected opened state")
	}
}
