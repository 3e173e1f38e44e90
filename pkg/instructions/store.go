package instructions

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/woffyai/woffyd/pkg/jsonfile"
)

const (
	FileName = "instructions.json"

	ModeWoffy  = "woffy_mode"
	ModeNormal = "normal_mode"
)

// Defaults is the mapping written the first time the store is touched.
// Saved deployments depend on these exact strings.
func Defaults() map[string]string {
	return map[string]string{
		ModeWoffy:  "Your name is Woffy. Behave like a friendly dog assistant.",
		ModeNormal: "You are an advanced AI assistant.",
	}
}

func ModeFor(woffy bool) string {
	if woffy {
		return ModeWoffy
	}
	return ModeNormal
}

// Store keeps system prompts keyed by mode in a single JSON object on disk.
// There is no in-process locking: concurrent Set calls race on the file and
// the last writer wins.
type Store struct {
	path   string
	logger *log.Logger
}

func NewStore(dataDir string) *Store {
	return &Store{
		path:   filepath.Join(dataDir, FileName),
		logger: log.WithPrefix("instructions"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Get never fails: a missing key or any read error yields "".
func (s *Store) Get(mode string) string {
	data, err := s.load()
	if err != nil {
		s.logger.Error("load instruction", "mode", mode, "err", err)
		return ""
	}
	return data[mode]
}

// All returns the prompts for the two built-in modes.
func (s *Store) All() map[string]string {
	return map[string]string{
		ModeWoffy:  s.Get(ModeWoffy),
		ModeNormal: s.Get(ModeNormal),
	}
}

func (s *Store) Set(mode, text string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return errors.New("mode cannot be empty")
	}
	data, err := s.load()
	if err != nil {
		s.logger.Error("save instruction", "mode", mode, "err", err)
		return err
	}
	data[mode] = text
	if err := jsonfile.Save(s.path, data); err != nil {
		s.logger.Error("save instruction", "mode", mode, "err", err)
		return fmt.Errorf("save instruction: %w", err)
	}
	s.logger.Info("instruction saved", "mode", mode, "chars", len(text))
	return nil
}

// load reads the backing object, seeding it with Defaults when absent.
func (s *Store) load() (map[string]string, error) {
	data := map[string]string{}
	err := jsonfile.Load(s.path, &data)
	if err == nil {
		if data == nil {
			data = map[string]string{}
		}
		return data, nil
	}
	if !errors.Is(err, jsonfile.ErrNotFound) {
		return nil, err
	}
	data = Defaults()
	if err := jsonfile.Save(s.path, data); err != nil {
		return nil, fmt.Errorf("seed default instructions: %w", err)
	}
	s.logger.Info("seeded default instructions", "path", s.path)
	return data, nil
}
