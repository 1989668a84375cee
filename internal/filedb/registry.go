// Package filedb implements the File-DB Registry: a mapping of logical
// container name to absolute file path for file-based engines (SQLite,
// DuckDB), plus a set of folders a user has declined to import from once
// and for all. Persistence follows the same write-temp-then-rename pattern
// internal/config uses for config.json.
package filedb

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spindb/spindb/internal/apperrors"
)

// Entry is one registered file-based database.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Registry is the persisted filedb.json body.
type Registry struct {
	Entries        []Entry  `json:"entries,omitempty"`
	IgnoredFolders []string `json:"ignoredFolders,omitempty"`

	root string
}

func filename(root string) string {
	return filepath.Join(root, "filedb.json")
}

// Load reads and parses filedb.json, returning an empty Registry if it
// doesn't exist yet.
func Load(root string) (*Registry, error) {
	reg := &Registry{root: root}
	data, err := os.ReadFile(filename(root))
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, apperrors.Wrap(err)
	}
	if len(data) == 0 {
		return reg, nil
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, apperrors.Wrap(err)
	}
	reg.root = root
	return reg, nil
}

// Save persists the registry atomically: write to a uniquely-named temp
// file in the same directory, then rename over filedb.json.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return apperrors.Wrap(err)
	}
	tmpName := filepath.Join(r.root, ".filedb-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpName, data, 0o644); err != nil {
		return apperrors.Wrap(err)
	}
	return os.Rename(tmpName, filename(r.root))
}

// Register adds or replaces the entry for name.
func (r *Registry) Register(name, path string) {
	for i, e := range r.Entries {
		if e.Name == name {
			r.Entries[i].Path = path
			return
		}
	}
	r.Entries = append(r.Entries, Entry{Name: name, Path: path})
}

// Remove deletes the entry for name, if present.
func (r *Registry) Remove(name string) {
	for i, e := range r.Entries {
		if e.Name == name {
			r.Entries = append(r.Entries[:i], r.Entries[i+1:]...)
			return
		}
	}
}

// Lookup returns the registered path for name.
func (r *Registry) Lookup(name string) (string, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Path, true
		}
	}
	return "", false
}

// FindOrphans returns every entry whose file no longer exists on disk.
func (r *Registry) FindOrphans() []Entry {
	var orphans []Entry
	for _, e := range r.Entries {
		if _, err := os.Stat(e.Path); err != nil {
			orphans = append(orphans, e)
		}
	}
	return orphans
}

// RemoveOrphans removes every orphaned entry and persists the result.
func (r *Registry) RemoveOrphans() ([]Entry, error) {
	orphans := r.FindOrphans()
	for _, e := range orphans {
		r.Remove(e.Name)
	}
	if len(orphans) > 0 {
		if err := r.Save(); err != nil {
			return nil, err
		}
	}
	return orphans, nil
}

// IsIgnoredFolder reports whether folder was previously declined for
// scanning.
func (r *Registry) IsIgnoredFolder(folder string) bool {
	for _, f := range r.IgnoredFolders {
		if f == folder {
			return true
		}
	}
	return false
}

// IgnoreFolder records folder as permanently declined for import scanning.
func (r *Registry) IgnoreFolder(folder string) {
	if r.IsIgnoredFolder(folder) {
		return
	}
	r.IgnoredFolders = append(r.IgnoredFolders, folder)
}
