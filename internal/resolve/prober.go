package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skelly-dev/graphloom/internal/store"
)

// Prober answers whether a path names an existing file.
type Prober interface {
	IsFile(path string) bool
}

// FSProber probes the filesystem.
type FSProber struct{}

func (FSProber) IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SetProber probes a fixed set of paths.
type SetProber map[string]bool

func (s SetProber) IsFile(path string) bool {
	return s[filepath.Clean(path)]
}

// Probers reports a path as a file when any of its probers does.
type Probers []Prober

func (ps Probers) IsFile(path string) bool {
	for _, p := range ps {
		if p.IsFile(path) {
			return true
		}
	}
	return false
}

// GraphProber probes the File nodes of one project, loaded once.
type GraphProber struct {
	files map[string]store.FileEntry
}

// NewGraphProber loads the project's files from the store.
func NewGraphProber(ctx context.Context, reader store.Reader, projectID string) (*GraphProber, error) {
	entries, err := reader.Files(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load files for %s: %w", projectID, err)
	}
	files := make(map[string]store.FileEntry, len(entries))
	for _, entry := range entries {
		files[filepath.Clean(entry.Path)] = entry
	}
	return &GraphProber{files: files}, nil
}

func (g *GraphProber) IsFile(path string) bool {
	_, ok := g.files[filepath.Clean(path)]
	return ok
}

// File returns the entry at path.
func (g *GraphProber) File(path string) (store.FileEntry, bool) {
	entry, ok := g.files[filepath.Clean(path)]
	return entry, ok
}

// Candidates returns every file as a fuzzy-match candidate.
func (g *GraphProber) Candidates() []Candidate {
	out := make([]Candidate, 0, len(g.files))
	for _, entry := range g.files {
		out = append(out, Candidate{
			ID:           entry.ID,
			Path:         entry.Path,
			RelativePath: entry.RelativePath,
			Name:         entry.Name,
			Labels:       entry.Labels,
		})
	}
	return out
}
