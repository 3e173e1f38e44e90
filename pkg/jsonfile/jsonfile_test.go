package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsErrNotFound(t *testing.T) {
	var out map[string]string
	err := Load(filepath.Join(t.TempDir(), "nope.json"), &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveCreatesDirAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "data.json")
	in := map[string]string{"woffy_mode": "bark"}
	if err := Save(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	var out map[string]string
	if err := Load(path, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if out["woffy_mode"] != "bark" {
		t.Fatalf("unexpected content: %v", out)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestSaveWritesIndentedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := Save(path, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "{\n  \"k\": \"v\"\n}\n" {
		t.Fatalf("unexpected file body %q", string(b))
	}
}

func TestLoadCorruptFileIsDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]string
	err := Load(path, &out)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
