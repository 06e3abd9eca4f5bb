// Package preset stores named player layouts in a YAML file.
package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned for an unknown preset name.
	ErrNotFound = errors.New("preset not found")
	// ErrInvalidName is returned for an empty or blank preset name.
	ErrInvalidName = errors.New("invalid preset name")
)

// Preset is a saved session and the players to open for it.
type Preset struct {
	Session session.Credentials       `yaml:",inline"`
	Players []supervisor.PlayerConfig `yaml:"players"`
}

// Matches reports whether the preset was saved for code. A preset without
// a session matches every code.
func (p Preset) Matches(code string) bool {
	return p.Session.Code == "" || strings.EqualFold(session.FormatCode(p.Session.Code), session.FormatCode(code))
}

type file struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Store reads and writes presets in one YAML file. Every call reads the
// file fresh, so edits made outside the process are picked up.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path. The file is created on the
// first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads every preset in path. A missing file is an empty set.
func Load(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Preset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse presets %s: %w", path, err)
	}
	if f.Presets == nil {
		f.Presets = map[string]Preset{}
	}
	return f.Presets, nil
}

// All returns every preset.
func (s *Store) All() (map[string]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.path)
}

// List returns the preset names in order.
func (s *Store) List() ([]string, error) {
	presets, err := s.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the named preset.
func (s *Store) Get(name string) (Preset, error) {
	presets, err := s.All()
	if err != nil {
		return Preset{}, err
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Save creates or replaces the named preset.
func (s *Store) Save(name string, p Preset) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := Load(s.path)
	if err != nil {
		return err
	}
	presets[name] = p
	return s.write(presets)
}

// Delete removes the named preset.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := Load(s.path)
	if err != nil {
		return err
	}
	if _, ok := presets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(presets, name)
	return s.write(presets)
}

// write replaces the file through a temporary file and rename.
func (s *Store) write(presets map[string]Preset) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}

	data, err := yaml.Marshal(file{Presets: presets})
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace presets: %w", err)
	}
	return nil
}
