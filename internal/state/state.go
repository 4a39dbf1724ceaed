// Package state remembers what the last ingestion of a project saw, so the
// next run only rebuilds what changed.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	StateFile           = "state.json"
	CurrentStateVersion = "1"
)

// FileState tracks the state of a single file
type FileState struct {
	Hash      string    `json:"hash"`
	Format    string    `json:"format"`
	Language  string    `json:"language,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State tracks the files of one project, keyed by slash-separated path
// relative to the project root.
type State struct {
	Version   string               `json:"version"`
	ProjectID string               `json:"project_id,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
	Files     map[string]FileState `json:"files"`
}

// NewState creates a new empty state
func NewState() *State {
	return &State{
		Version: CurrentStateVersion,
		Files:   make(map[string]FileState),
	}
}

// Load reads state from dir. A missing file yields an empty state.
func Load(dir string) (*State, error) {
	path := filepath.Join(dir, StateFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	migrateState(&state)

	return &state, nil
}

// Save writes state to dir, creating it if needed.
func (s *State) Save(dir string) error {
	if s.Version == "" {
		s.Version = CurrentStateVersion
	}
	if s.Files == nil {
		s.Files = make(map[string]FileState)
	}

	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, StateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetFile records the current state of a file
func (s *State) SetFile(file string, fs FileState) {
	if fs.UpdatedAt.IsZero() {
		fs.UpdatedAt = time.Now()
	}
	s.Files[file] = fs
}

// GetFileHash returns the stored hash for a file
func (s *State) GetFileHash(file string) (string, bool) {
	fs, ok := s.Files[file]
	if !ok {
		return "", false
	}
	return fs.Hash, true
}

// HasChanged returns true if the file hash differs from stored
func (s *State) HasChanged(file, currentHash string) bool {
	storedHash, ok := s.GetFileHash(file)
	if !ok {
		return true // New file
	}
	return storedHash != currentHash
}

// FormatChanged reports whether a known file is now classified differently,
// e.g. after a rename kept its path but changed what parses it.
func (s *State) FormatChanged(file, format string) bool {
	fs, ok := s.Files[file]
	return ok && fs.Format != format
}

// RemoveFile removes a file from state tracking
func (s *State) RemoveFile(file string) {
	delete(s.Files, file)
}

// ChangedFiles returns files that are new or whose hash differs, sorted.
func (s *State) ChangedFiles(currentHashes map[string]string) []string {
	changed := make([]string, 0)

	for file, hash := range currentHashes {
		if s.HasChanged(file, hash) {
			changed = append(changed, file)
		}
	}

	sort.Strings(changed)
	return changed
}

// DeletedFiles returns tracked files that no longer exist, sorted.
func (s *State) DeletedFiles(currentFiles map[string]bool) []string {
	deleted := make([]string, 0)

	for file := range s.Files {
		if !currentFiles[file] {
			deleted = append(deleted, file)
		}
	}

	sort.Strings(deleted)
	return deleted
}

// Paths returns every tracked file, sorted.
func (s *State) Paths() []string {
	out := make([]string, 0, len(s.Files))
	for file := range s.Files {
		out = append(out, file)
	}
	sort.Strings(out)
	return out
}

func migrateState(s *State) {
	if s.Files == nil {
		s.Files = make(map[string]FileState)
	}

	switch s.Version {
	case "":
		s.Version = CurrentStateVersion
	case CurrentStateVersion:
		// no-op
	default:
		// Unknown versions are kept; every entry will look changed if the
		// format strings differ.
	}
}
