package instructions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGetSeedsDefaultsOnFirstAccess(t *testing.T) {
	s := NewStore(t.TempDir())
	if got := s.Get(ModeWoffy); got != "Your name is Woffy. Behave like a friendly dog assistant." {
		t.Fatalf("unexpected woffy default %q", got)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("expected seeded file: %v", err)
	}
	var onDisk map[string]string
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("decode seeded file: %v", err)
	}
	want := Defaults()
	if len(onDisk) != len(want) {
		t.Fatalf("expected %d seeded modes, got %v", len(want), onDisk)
	}
	for k, v := range want {
		if onDisk[k] != v {
			t.Fatalf("seeded %s = %q, want %q", k, onDisk[k], v)
		}
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := NewStore(t.TempDir())
	cases := map[string]string{
		ModeWoffy:  "Bark twice.",
		ModeNormal: "",
		"pirate":   "Arr, multi\nline ünïcode",
	}
	for mode, text := range cases {
		if err := s.Set(mode, text); err != nil {
			t.Fatalf("set %s: %v", mode, err)
		}
		if got := s.Get(mode); got != text {
			t.Fatalf("get %s = %q, want %q", mode, got, text)
		}
	}
}

func TestSetLeavesOtherModesUntouched(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Set(ModeNormal, "Be concise."); err != nil {
		t.Fatalf("set normal: %v", err)
	}
	before := s.Get(ModeWoffy)
	if err := s.Set(ModeNormal, "Be verbose."); err != nil {
		t.Fatalf("set normal again: %v", err)
	}
	if got := s.Get(ModeWoffy); got != before {
		t.Fatalf("woffy changed from %q to %q", before, got)
	}
	if before != Defaults()[ModeWoffy] {
		t.Fatalf("expected seeded woffy default to survive first set, got %q", before)
	}
}

func TestGetUnknownModeIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	if got := s.Get("does_not_exist"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestGetCorruptFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewStore(dir)
	if got := s.Get(ModeWoffy); got != "" {
		t.Fatalf("expected empty string on read error, got %q", got)
	}
	if err := s.Set(ModeWoffy, "x"); err == nil {
		t.Fatal("expected set to refuse overwriting an unreadable file")
	}
}

func TestSetFailsWhenDataDirUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("file, not dir"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	s := NewStore(filepath.Join(blocker, "data"))
	if err := s.Set(ModeWoffy, "x"); err == nil {
		t.Fatal("expected persistence error")
	}
	if got := s.Get(ModeWoffy); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestSetRejectsEmptyMode(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Set("  ", "x"); err == nil {
		t.Fatal("expected error for empty mode")
	}
}

func TestModeFor(t *testing.T) {
	if ModeFor(true) != ModeWoffy || ModeFor(false) != ModeNormal {
		t.Fatal("unexpected mode mapping")
	}
}
