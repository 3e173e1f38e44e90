package logutil

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/charmbracelet/log"
)

func TestParseLevelMapsTraceToDebug(t *testing.T) {
	for _, raw := range []string{"trace", "TRACE", " trac "} {
		level, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if level != log.DebugLevel {
			t.Fatalf("expected debug for %q, got %v", raw, level)
		}
	}
	if level, err := ParseLevel(""); err != nil || level != log.InfoLevel {
		t.Fatalf("expected info default, got %v %v", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestParseFormatter(t *testing.T) {
	if f, err := ParseFormatter("json"); err != nil || f != log.JSONFormatter {
		t.Fatalf("expected json formatter, got %v %v", f, err)
	}
	if _, err := ParseFormatter("xml"); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestConfigureFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		_ = Configure("info", "text")
	})
	if err := Configure("warn", "logfmt"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.Info("hidden message")
	log.Warn("visible message", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Fatalf("info line should be filtered:\n%s", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "k=v") {
		t.Fatalf("expected warn line in output:\n%s", out)
	}
}

func TestStandardLogWritesThroughDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	if err := Configure("info", "text"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	StandardLog("http", log.InfoLevel).Print("GET / 200")
	if !strings.Contains(buf.String(), "GET / 200") {
		t.Fatalf("expected bridged line, got %q", buf.String())
	}
}
