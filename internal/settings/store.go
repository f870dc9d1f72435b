// Package settings persists the user-facing caption settings (engine, languages,
// model directory, capture device, overlay position, provider credentials).
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const sectionKey = "user_settings"

var (
	ErrMissingRequired = errors.New("missing required configuration items")
	ErrInvalidDevice   = errors.New("invalid device index")
)

// Store loads and saves the settings document. Writes are last-write-wins.
type Store struct {
	path string
	log  *slog.Logger

	mu  sync.Mutex
	doc map[string]any
}

// NewStore creates a store for the JSON document at path.
func NewStore(path string, log *slog.Logger) *Store {
	s := &Store{
		path: path,
		log:  log.With(slog.String("component", "settings")),
	}
	s.doc = s.defaults()
	return s
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) defaults() map[string]any {
	doc := DefaultDocument()
	s.resolveModelDir(doc)
	return doc
}

// Load merges the stored document over the defaults. A missing file is created
// with defaults; a malformed file is logged and the defaults are used.
func (s *Store) Load() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = s.defaults()
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.writeLocked(); err != nil {
			s.log.Error("failed to write default settings", slogError(err))
		}
	case err != nil:
		s.log.Error("failed to read settings file", slogError(err))
	default:
		var stored map[string]any
		if err := json.Unmarshal(data, &stored); err != nil {
			s.log.Error("settings file format error, using defaults", slogError(err))
			break
		}
		deepMerge(s.doc, stored)
		s.resolveModelDir(s.doc)
		s.log.Info("settings loaded", slog.String("path", s.path))
	}
	return fromDocument(s.doc)
}

// Current returns the in-memory settings without touching disk.
func (s *Store) Current() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromDocument(s.doc)
}

// Save validates current, merges it into the document and writes it.
func (s *Store) Save(current UserSettings) error {
	update := map[string]any{sectionKey: current.toMap()}
	return s.SaveDocument(update)
}

// SaveDocument validates and merges a raw settings document.
func (s *Store) SaveDocument(update map[string]any) error {
	if err := validate(update); err != nil {
		s.log.Error("rejected settings save", slogError(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// monitor_position is a pair; concatenating would grow it on every save.
	if section, ok := s.doc[sectionKey].(map[string]any); ok {
		if us, ok := update[sectionKey].(map[string]any); ok {
			if _, ok := us["monitor_position"]; ok {
				delete(section, "monitor_position")
			}
		}
	}
	deepMerge(s.doc, update)
	if err := s.writeLocked(); err != nil {
		s.log.Error("failed to save settings", slogError(err))
		return err
	}
	return nil
}

func (s *Store) writeLocked() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(s.doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.log.Info("settings saved", slog.String("path", s.path))
	return nil
}

// resolveModelDir turns a relative model_dir into an absolute path anchored at
// the settings file directory.
func (s *Store) resolveModelDir(doc map[string]any) {
	section, ok := doc[sectionKey].(map[string]any)
	if !ok {
		return
	}
	dir, ok := section["model_dir"].(string)
	if !ok || dir == "" || filepath.IsAbs(dir) {
		return
	}
	base := filepath.Dir(s.path)
	abs, err := filepath.Abs(filepath.Join(base, dir))
	if err != nil {
		s.log.Warn("failed to resolve model dir", slogError(err))
		return
	}
	section["model_dir"] = abs
}

func validate(doc map[string]any) error {
	section, _ := doc[sectionKey].(map[string]any)
	for _, key := range []string{"engine", "source_lang", "target_lang"} {
		if _, ok := section[key]; !ok {
			return ErrMissingRequired
		}
	}
	idx, ok := toInt(section["transcribe_device_index"])
	if !ok {
		idx = -1
	}
	if idx < 0 {
		return ErrInvalidDevice
	}
	return nil
}

// deepMerge merges update into base: maps recurse, arrays concatenate,
// scalars overwrite.
func deepMerge(base, update map[string]any) {
	for key, value := range update {
		switch v := value.(type) {
		case map[string]any:
			node, ok := base[key].(map[string]any)
			if !ok {
				node = make(map[string]any)
				base[key] = node
			}
			deepMerge(node, v)
		case []any:
			existing, _ := base[key].([]any)
			merged := make([]any, 0, len(existing)+len(v))
			merged = append(merged, existing...)
			merged = append(merged, v...)
			base[key] = merged
		default:
			base[key] = value
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
