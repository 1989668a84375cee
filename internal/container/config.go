// Package container implements the Container Manager: the on-disk registry
// of ContainerConfigs and the multi-step lifecycle operations (create,
// delete, clone, rename, addDatabase/removeDatabase, list) that compose the
// Binary Manager, Port Manager, Process Manager, and per-engine code under a
// Transaction Manager umbrella.
package container

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/platform"
)

// nameRe is the closed shape a container name must match: a leading letter
// followed by letters, digits, underscore, or hyphen.
var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidateName enforces the container naming invariant.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return apperrors.New(apperrors.CodeContainerCreateFailed, apperrors.SeverityError,
			"container name must start with a letter and contain only letters, digits, underscore, or hyphen").
			WithContext("name", name)
	}
	return nil
}

// LoadConfig reads and parses one container's container.json.
func LoadConfig(root string, eng engine.ID, name string) (*engine.ContainerConfig, error) {
	path := platform.ContainerConfigFile(root, string(eng), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodeContainerNotFound, apperrors.SeverityError,
				"no container named "+name+" for engine "+string(eng))
		}
		return nil, apperrors.Wrap(err)
	}
	var cfg engine.ContainerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(err)
	}
	return &cfg, nil
}

// SaveConfig persists cfg atomically: write to a uniquely-named temp file in
// the same directory, then rename over container.json so a reader never
// observes a partial write.
func SaveConfig(root string, cfg *engine.ContainerConfig) error {
	dir := platform.ContainerDir(root, string(cfg.Engine), cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperrors.Wrap(err)
	}

	tmpName := filepath.Join(dir, ".container-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpName, data, 0o644); err != nil {
		return apperrors.Wrap(err)
	}
	return os.Rename(tmpName, platform.ContainerConfigFile(root, string(cfg.Engine), cfg.Name))
}

// DeleteConfig removes a container's persisted config; used as a rollback
// step when a later stage of create fails.
func DeleteConfig(root string, eng engine.ID, name string) error {
	err := os.Remove(platform.ContainerConfigFile(root, string(eng), name))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(err)
	}
	return nil
}

// ListConfigs enumerates every persisted ContainerConfig across all engines.
func ListConfigs(root string) ([]*engine.ContainerConfig, error) {
	var out []*engine.ContainerConfig
	containersRoot := platform.Containers(root)
	engineDirs, err := os.ReadDir(containersRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err)
	}

	for _, ed := range engineDirs {
		if !ed.IsDir() {
			continue
		}
		nameDirs, err := os.ReadDir(filepath.Join(containersRoot, ed.Name()))
		if err != nil {
			continue
		}
		for _, nd := range nameDirs {
			if !nd.IsDir() {
				continue
			}
			cfg, err := LoadConfig(root, engine.ID(ed.Name()), nd.Name())
			if err != nil {
				continue
			}
			out = append(out, cfg)
		}
	}
	return out, nil
}

// Exists reports whether a container with this (engine, name) already has a
// persisted config.
func Exists(root string, eng engine.ID, name string) bool {
	_, err := os.Stat(platform.ContainerConfigFile(root, string(eng), name))
	return err == nil
}
