package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"lmctld/pkg/types"
)

// Store persists the configuration document as a single JSON file. The
// document is read in full on every control request and written back in full
// on every mutation; concurrent writers race with last-writer-wins semantics,
// which is acceptable because the document is operator-edited.
type Store struct {
	path string
	log  zerolog.Logger
}

// New builds a store for the document at path. A leading '~' is expanded to
// the user's home directory.
func New(path string, log zerolog.Logger) *Store {
	if p, err := expandHome(path); err == nil {
		path = p
	}
	return &Store{path: path, log: log}
}

// Path returns the resolved document path.
func (s *Store) Path() string { return s.path }

// DefaultDocument returns the built-in configuration used when the persisted
// document is missing or unreadable. FrontendDefaults carries a complete,
// correctly-typed set of the knobs BuildStartupParameters reads.
func DefaultDocument() types.ConfigDocument {
	return types.ConfigDocument{
		ModelDirectories: types.ModelDirectories{
			Language: "models/language",
			Voice:    "models/voice",
		},
		LanguageModels: []types.ModelEntry{},
		VoiceModels:    []types.ModelEntry{},
		FrontendDefaults: types.FrontendDefaults{
			"model":          "",
			"host":           defaultHost,
			"port":           defaultPort,
			"max_tokens":     defaultMaxTokensSlider,
			"context_size":   defaultContextSlider,
			"temperature":    defaultTemperature,
			"repeat_penalty": defaultRepeatPenalty,
			"threads":        defaultThreads,
			"gpu_layers":     defaultGPULayers,
			"compute_mode":   "auto",
		},
	}
}

// Load reads the persisted document. It never returns an error: on any read
// or parse failure the default document is returned and the failure is logged.
func (s *Store) Load() types.ConfigDocument {
	b, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("config document unreadable, using defaults")
		return DefaultDocument()
	}
	var doc types.ConfigDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("config document malformed, using defaults")
		return DefaultDocument()
	}
	if doc.FrontendDefaults == nil {
		doc.FrontendDefaults = DefaultDocument().FrontendDefaults
	}
	return doc
}

// Save writes the whole document. It writes to a temporary file in the target
// directory and renames it into place, so a concurrent reader never observes
// a partially-written document as valid JSON.
func (s *Store) Save(doc types.ConfigDocument) error {
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config document: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".llm_config-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

// ResolveModelPath joins the configured language model directory with the
// model file name.
func ResolveModelPath(doc types.ConfigDocument, fileName string) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", configurationError{field: "model", value: fileName}
	}
	dir, err := expandHome(doc.ModelDirectories.Language)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
