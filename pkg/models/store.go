package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"github.com/woffyai/woffyd/pkg/jsonfile"
)

const FileName = "model.json"

// Descriptor is one selectable model as the frontend reads it from model.json.
type Descriptor struct {
	NameToShow  string `json:"name to show"`
	APIName     string `json:"api_name"`
	Description string `json:"description"`
	AddedAt     string `json:"added_at"`
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var apiNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_./:-]+$`)

// ParseRecords decodes a JSON array of loosely shaped model records.
// Missing keys fall back the way the frontend admin page expects:
// "name to show" <- "name" <- "api_name", everything else defaults to "".
// Non-string scalars are stored as their JSON text and an explicit null as "",
// which still counts as present for the name fallback.
func ParseRecords(raw []byte) ([]Descriptor, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ValidationError{Message: "request body must be valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, &ValidationError{Message: "request body must be an array of models"}
	}
	out := []Descriptor{}
	var bad error
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			bad = &ValidationError{Message: fmt.Sprintf("model record %d must be an object", len(out))}
			return false
		}
		fields := map[string]gjson.Result{}
		item.ForEach(func(k, v gjson.Result) bool {
			fields[k.String()] = v
			return true
		})
		str := func(key string) (string, bool) {
			v, ok := fields[key]
			if !ok {
				return "", false
			}
			if v.Type == gjson.Null {
				return "", true
			}
			return v.String(), true
		}
		d := Descriptor{}
		d.APIName, _ = str("api_name")
		d.Description, _ = str("description")
		d.AddedAt, _ = str("added_at")
		if v, ok := str("name to show"); ok {
			d.NameToShow = v
		} else if v, ok := str("name"); ok {
			d.NameToShow = v
		} else {
			d.NameToShow = d.APIName
		}
		out = append(out, d)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return out, nil
}

// Store persists the model list as one JSON array, rewritten wholesale on
// every save.
type Store struct {
	path   string
	now    func() time.Time
	logger *log.Logger
}

func NewStore(dataDir string) *Store {
	return &Store{
		path:   filepath.Join(dataDir, FileName),
		now:    time.Now,
		logger: log.WithPrefix("models"),
	}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() ([]Descriptor, error) {
	var list []Descriptor
	if err := jsonfile.Load(s.path, &list); err != nil {
		if errors.Is(err, jsonfile.ErrNotFound) {
			return []Descriptor{}, nil
		}
		return nil, err
	}
	if list == nil {
		list = []Descriptor{}
	}
	return list, nil
}

func (s *Store) Save(list []Descriptor) error {
	if list == nil {
		list = []Descriptor{}
	}
	if err := jsonfile.Save(s.path, list); err != nil {
		s.logger.Error("save models", "count", len(list), "err", err)
		return fmt.Errorf("save models: %w", err)
	}
	s.logger.Info("models saved", "count", len(list), "path", s.path)
	return nil
}

// Add validates a single model and appends it to the stored list.
func (s *Store) Add(nameToShow, apiName, description string) (Descriptor, error) {
	nameToShow = strings.TrimSpace(nameToShow)
	apiName = strings.TrimSpace(apiName)
	if nameToShow == "" {
		return Descriptor{}, &ValidationError{Message: "Display name is required"}
	}
	if apiName == "" {
		return Descriptor{}, &ValidationError{Message: "API name is required"}
	}
	if !apiNamePattern.MatchString(apiName) {
		return Descriptor{}, &ValidationError{Message: "API name should only contain letters, numbers, underscores, hyphens, dots, colons and slashes"}
	}
	list, err := s.Load()
	if err != nil {
		return Descriptor{}, err
	}
	for _, d := range list {
		if d.APIName == apiName {
			return Descriptor{}, &ValidationError{Message: fmt.Sprintf("model %q already exists", apiName)}
		}
	}
	d := Descriptor{
		NameToShow:  nameToShow,
		APIName:     apiName,
		Description: description,
		AddedAt:     s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Save(append(list, d)); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Contains reports whether apiName is in the stored list. Read errors count
// as absent.
func (s *Store) Contains(apiName string) bool {
	apiName = strings.TrimSpace(apiName)
	if apiName == "" {
		return false
	}
	list, err := s.Load()
	if err != nil {
		s.logger.Warn("load models", "err", err)
		return false
	}
	for _, d := range list {
		if d.APIName == apiName {
			return true
		}
	}
	return false
}
