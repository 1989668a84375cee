package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// UserConfig is the persisted config.json body: user preferences plus the
// binary registry catalog cache that Doctor's refresh-catalog action writes
// and its staleness check reads. The prior implementation persists
// its equivalent as YAML via github.com/jesseduffield/yaml; SpinDB's
// filesystem layout names the file config.json explicitly, so this is JSON
// via encoding/json instead — see DESIGN.md for why that one substitution
// is justified.
type UserConfig struct {
	Preferences  Preferences   `json:"preferences"`
	CatalogCache *CatalogCache `json:"catalogCache,omitempty"`
}

// Preferences holds small user-level toggles consulted by several
// components (Doctor's non-interactive detection, Pull's default mode).
type Preferences struct {
	DefaultRegistryURL string `json:"defaultRegistryUrl,omitempty"`
	NonInteractive     bool   `json:"nonInteractive,omitempty"`
}

// CatalogCache is the last binary registry catalog Doctor's refresh-catalog
// action fetched. Only FetchedAt is consulted (by Doctor's staleness check);
// nothing reads versions back out of RawJSON.
type CatalogCache struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	RawJSON   json.RawMessage `json:"raw"`
}

func defaultUserConfig() UserConfig {
	return UserConfig{
		Preferences: Preferences{
			DefaultRegistryURL: "https://registry.spindb.dev/catalog.json",
		},
	}
}

func loadUserConfigWithDefaults(root string) (*UserConfig, error) {
	cfg := defaultUserConfig()
	return loadUserConfig(root, &cfg)
}

func loadUserConfig(root string, base *UserConfig) (*UserConfig, error) {
	path := filepath.Join(root, "config.json")

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := writeUserConfigAtomic(root, base); werr != nil {
				return nil, werr
			}
			return base, nil
		}
		return nil, err
	}

	if len(content) == 0 {
		return base, nil
	}

	if err := json.Unmarshal(content, base); err != nil {
		return nil, err
	}
	return base, nil
}

// writeUserConfigAtomic writes to a uniquely-named temp file in the same
// directory, then renames over the target so a reader never observes a
// partial write.
func writeUserConfigAtomic(root string, cfg *UserConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmpName := filepath.Join(root, ".config-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpName, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(root, "config.json"))
}

// WriteToUserConfig reloads the on-disk config, applies update, and persists
// the result atomically, mirroring the prior implementation's AppConfig.WriteToUserConfig
// read-modify-write shape.
func (c *AppConfig) WriteToUserConfig(update func(*UserConfig) error) error {
	cfg, err := loadUserConfig(c.Root, &UserConfig{})
	if err != nil {
		return err
	}
	if err := update(cfg); err != nil {
		return err
	}
	if err := writeUserConfigAtomic(c.Root, cfg); err != nil {
		return err
	}
	c.UserConfig = cfg
	return nil
}
